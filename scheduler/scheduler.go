// Package scheduler runs prioritized callbacks cooperatively on a single
// goroutine. Callbacks split long work into slices by checking ShouldYield
// and returning a continuation.
package scheduler

import (
	"container/heap"
	"context"
	"math"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/delaneyj/fiberparty/lane"
	"github.com/sirupsen/logrus"
)

type Priority uint8

const (
	NoPriority Priority = iota
	ImmediatePriority
	UserBlockingPriority
	NormalPriority
	LowPriority
	IdlePriority
)

func (p Priority) String() string {
	switch p {
	case ImmediatePriority:
		return "immediate"
	case UserBlockingPriority:
		return "user-blocking"
	case NormalPriority:
		return "normal"
	case LowPriority:
		return "low"
	case IdlePriority:
		return "idle"
	default:
		return "none"
	}
}

// timeout is how long a task may wait before it is considered expired and
// runs without yielding.
func (p Priority) timeout() lane.Timestamp {
	switch p {
	case ImmediatePriority:
		return -1
	case UserBlockingPriority:
		return 250
	case LowPriority:
		return 10000
	case IdlePriority:
		return math.MaxInt32
	default:
		return 5000
	}
}

const DefaultFrameInterval = 5 * time.Millisecond

// Callback is one slice of a task. Returning a non-nil Callback keeps the
// task queued with the continuation in place of the original callback.
type Callback func(didTimeout bool) Callback

// SyncCallback is queued work for the synchronous lane.
type SyncCallback func() error

type Task struct {
	id             uint64
	callback       Callback
	priority       Priority
	startTime      lane.Timestamp
	expirationTime lane.Timestamp
	index          int
	cancelled      bool
}

func (t *Task) Priority() Priority {
	return t.priority
}

// Cancelled reports whether the task will no longer run.
func (t *Task) Cancelled() bool {
	return t.cancelled
}

type Scheduler struct {
	clock         clock.Clock
	start         time.Time
	frameInterval time.Duration
	log           logrus.FieldLogger

	taskQueue       taskHeap
	taskIDCounter   uint64
	currentTask     *Task
	currentPriority Priority
	performingWork  bool
	deadline        time.Time

	yieldBudget int
	forcedYield bool

	syncQueue           []SyncCallback
	immediateQueueTask  *Task
	isFlushingSyncQueue bool

	mu     sync.Mutex
	posted []func()
	wake   chan struct{}
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithFrameInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.frameInterval = d
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:           clock.NewClock(),
		frameInterval:   DefaultFrameInterval,
		log:             logrus.StandardLogger(),
		currentPriority: NormalPriority,
		yieldBudget:     -1,
		wake:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.clock.Now()
	return s
}

// Now returns milliseconds elapsed since the scheduler was created.
func (s *Scheduler) Now() lane.Timestamp {
	return lane.Timestamp(s.clock.Since(s.start) / time.Millisecond)
}

func (s *Scheduler) CurrentPriority() Priority {
	return s.currentPriority
}

// RunWithPriority runs fn with p as the current priority.
func (s *Scheduler) RunWithPriority(p Priority, fn func()) {
	prev := s.currentPriority
	s.currentPriority = p
	defer func() { s.currentPriority = prev }()
	fn()
}

func (s *Scheduler) ScheduleCallback(p Priority, cb Callback) *Task {
	now := s.Now()
	s.taskIDCounter++
	t := &Task{
		id:             s.taskIDCounter,
		callback:       cb,
		priority:       p,
		startTime:      now,
		expirationTime: now + p.timeout(),
		index:          -1,
	}
	heap.Push(&s.taskQueue, t)
	s.signal()
	return t
}

func (s *Scheduler) CancelCallback(t *Task) {
	if t == nil {
		return
	}
	t.callback = nil
	t.cancelled = true
	if t != s.currentTask && t.index >= 0 {
		heap.Remove(&s.taskQueue, t.index)
	}
}

// ShouldYield reports whether the current slice has used up its frame.
func (s *Scheduler) ShouldYield() bool {
	if s.forcedYield {
		return true
	}
	if s.yieldBudget >= 0 {
		if s.yieldBudget == 0 {
			s.yieldBudget = -1
			s.forcedYield = true
			return true
		}
		s.yieldBudget--
	}
	return s.pastDeadline()
}

// shouldYieldToHost is the check between tasks. It honors a forced yield
// but leaves the YieldAfter budget to the tasks themselves.
func (s *Scheduler) shouldYieldToHost() bool {
	return s.forcedYield || s.pastDeadline()
}

func (s *Scheduler) pastDeadline() bool {
	return !s.clock.Now().Before(s.deadline)
}

// YieldAfter makes ShouldYield report true after n more checks, until the
// current slice ends. Tests use it to interrupt a render at an exact node.
func (s *Scheduler) YieldAfter(n int) {
	s.yieldBudget = n
}

// HasPendingWork reports whether any task is queued.
func (s *Scheduler) HasPendingWork() bool {
	return s.taskQueue.Len() > 0
}

// RunNext runs one frame worth of tasks and reports whether work remains.
func (s *Scheduler) RunNext() bool {
	if s.performingWork {
		panic("scheduler: RunNext called from within a task")
	}
	s.drainPosted()

	s.forcedYield = false
	s.deadline = s.clock.Now().Add(s.frameInterval)
	s.performingWork = true
	prevPriority := s.currentPriority
	defer func() {
		s.currentTask = nil
		s.currentPriority = prevPriority
		s.performingWork = false
		s.forcedYield = false
	}()
	return s.workLoop(s.Now())
}

// FlushAll runs tasks until none are left.
func (s *Scheduler) FlushAll() {
	for s.RunNext() {
	}
}

func (s *Scheduler) workLoop(currentTime lane.Timestamp) bool {
	for s.taskQueue.Len() > 0 {
		t := s.taskQueue[0]
		if t.expirationTime > currentTime && s.shouldYieldToHost() {
			// Not expired and out of time for this frame.
			break
		}
		cb := t.callback
		if cb == nil {
			heap.Pop(&s.taskQueue)
			continue
		}
		t.callback = nil
		s.currentTask = t
		s.currentPriority = t.priority

		continuation := cb(t.expirationTime <= currentTime)
		currentTime = s.Now()

		if continuation != nil && !t.cancelled && t.index >= 0 {
			t.callback = continuation
		} else if t.index >= 0 {
			heap.Remove(&s.taskQueue, t.index)
		}
		s.currentTask = nil
	}
	return s.taskQueue.Len() > 0
}

// Post queues fn to run on the scheduler goroutine. It is safe to call from
// any goroutine.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.posted = append(s.posted, fn)
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) drainPosted() {
	s.mu.Lock()
	posted := s.posted
	s.posted = nil
	s.mu.Unlock()
	for _, fn := range posted {
		fn()
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the scheduler until ctx is done. All scheduled callbacks and
// posted functions execute on the calling goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.drainPosted()
		if s.taskQueue.Len() > 0 {
			s.RunNext()
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].expirationTime != h[j].expirationTime {
		return h[i].expirationTime < h[j].expirationTime
	}
	return h[i].id < h[j].id
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
