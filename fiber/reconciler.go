package fiber

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type executionContext uint8

const (
	noContext         executionContext = 0
	batchedContext    executionContext = 1 << (iota - 1)
	eventContext
	discreteEventContext
	legacyUnbatchedContext
	renderContext
	commitContext
	retryAfterErrorContext
)

// ExitStatus is the outcome of a render attempt.
type ExitStatus uint8

const (
	RootIncomplete ExitStatus = iota
	RootFatalErrored
	RootErrored
	RootSuspended
	RootSuspendedWithDelay
	RootCompleted
)

func (s ExitStatus) String() string {
	switch s {
	case RootIncomplete:
		return "incomplete"
	case RootFatalErrored:
		return "fatal-errored"
	case RootErrored:
		return "errored"
	case RootSuspended:
		return "suspended"
	case RootSuspendedWithDelay:
		return "suspended-with-delay"
	case RootCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

const (
	DefaultNestedUpdateLimit = 50
	DefaultReRenderLimit     = 25
)

// ErrorHandler receives errors raised inside scheduler tasks, where no
// caller is around to receive them. root is nil when the error is not
// tied to a root.
type ErrorHandler func(root *Root, err error)

type passiveEffect struct {
	fiber  *Fiber
	effect *hookEffect
}

// Reconciler owns the work loop state of one renderer. It is not safe for
// concurrent use: every method must be called from the goroutine that
// drives its scheduler.
type Reconciler struct {
	host    HostConfig
	sched   TaskScheduler
	log     logrus.FieldLogger
	onError ErrorHandler

	nestedUpdateLimit int
	reRenderLimit     int

	executionContext executionContext

	wipRoot              *Root
	wip                  *Fiber
	wipRootRenderLanes   lane.Lanes
	subtreeRenderLanes   lane.Lanes
	wipRootIncludedLanes lane.Lanes
	wipRootExitStatus    ExitStatus
	wipRootFatalError    error
	wipRootSkippedLanes  lane.Lanes
	wipRootUpdatedLanes  lane.Lanes
	wipRootPingedLanes   lane.Lanes

	hasForceUpdate          bool
	didReceiveUpdate        bool
	currentlyRenderingFiber *Fiber
	renderingHooks          *Hooks

	currentEventTime         lane.Timestamp
	currentEventWipLanes     lane.Lanes
	currentEventPendingLanes lane.Lanes
	isTransition             bool
	mostRecentlyUpdatedRoot  *Root

	nestedUpdateCount     int
	rootWithNestedUpdates *Root

	rootDoesHavePassiveEffects    bool
	rootWithPendingPassiveEffects *Root
	pendingPassiveEffectsLanes    lane.Lanes
	pendingPassiveUnmount         []passiveEffect
	pendingPassiveMount           []passiveEffect

	failedBoundaries                mapset.Set[Instance]
	rootsWithPendingDiscreteUpdates mapset.Set[*Root]

	// uncaughtErrors collects commit phase errors no boundary captured.
	uncaughtErrors error
	inSyncFlush    int

	stacks         stacks
	providerValues map[*Context]*providerValue
}

type Option func(*Reconciler)

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reconciler) {
		r.log = l
	}
}

func WithErrorHandler(fn ErrorHandler) Option {
	return func(r *Reconciler) {
		r.onError = fn
	}
}

// WithNestedUpdateLimit bounds how many synchronous commits in a row a
// root may trigger from its own commit effects.
func WithNestedUpdateLimit(n int) Option {
	return func(r *Reconciler) {
		r.nestedUpdateLimit = n
	}
}

// WithReRenderLimit bounds how many times a function component may
// re-render because of state updates made while rendering.
func WithReRenderLimit(n int) Option {
	return func(r *Reconciler) {
		r.reRenderLimit = n
	}
}

func New(host HostConfig, sched TaskScheduler, opts ...Option) *Reconciler {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	r := &Reconciler{
		host:                            host,
		sched:                           sched,
		log:                             log,
		nestedUpdateLimit:               DefaultNestedUpdateLimit,
		reRenderLimit:                   DefaultReRenderLimit,
		currentEventTime:                lane.NoTimestamp,
		failedBoundaries:                mapset.NewThreadUnsafeSet[Instance](),
		rootsWithPendingDiscreteUpdates: mapset.NewThreadUnsafeSet[*Root](),
		providerValues:                  map[*Context]*providerValue{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// reportError hands err to whoever can receive it. Errors raised during a
// commit surface from that commit; everything else goes to the error
// handler, or the log when there is none.
func (r *Reconciler) reportError(root *Root, err error) {
	if err == nil {
		return
	}
	if r.executionContext&commitContext != 0 {
		r.uncaughtErrors = appendError(r.uncaughtErrors, err)
		return
	}
	if r.onError != nil {
		r.onError(root, err)
		return
	}
	r.log.WithError(err).Warn("unhandled reconciler error")
}

// enter adds ctx to the execution context and returns the function that
// restores it. Leaving the outermost context flushes pending sync work.
func (r *Reconciler) enter(ctx executionContext) func() error {
	prev := r.executionContext
	r.executionContext |= ctx
	return func() error {
		r.executionContext = prev
		if prev != noContext {
			return nil
		}
		r.currentEventTime = lane.NoTimestamp
		return r.flushSyncCallbackQueue()
	}
}

// BatchedUpdates runs fn and renders every update it schedules at once,
// after fn returns.
func (r *Reconciler) BatchedUpdates(fn func() error) error {
	exit := r.enter(batchedContext)
	err := fn()
	return appendError(err, exit())
}

// DiscreteUpdates runs fn as the handler of a discrete input event, such
// as a click. Updates it schedules get input-discrete lanes.
func (r *Reconciler) DiscreteUpdates(fn func() error) error {
	exit := r.enter(discreteEventContext)
	var err error
	r.sched.RunWithPriority(scheduler.UserBlockingPriority, func() {
		err = fn()
	})
	return appendError(err, exit())
}

// UnbatchedUpdates runs fn so that sync updates it schedules on legacy
// roots render immediately, even inside a batch.
func (r *Reconciler) UnbatchedUpdates(fn func() error) error {
	prev := r.executionContext
	r.executionContext = r.executionContext&^batchedContext | legacyUnbatchedContext
	err := fn()
	r.executionContext = prev
	if prev == noContext {
		r.currentEventTime = lane.NoTimestamp
		err = appendError(err, r.flushSyncCallbackQueue())
	}
	return err
}

// FlushSync runs fn at sync priority and renders everything it scheduled
// before returning. It cannot be called while rendering or committing.
func (r *Reconciler) FlushSync(fn func() error) error {
	if r.executionContext&(renderContext|commitContext) != 0 {
		return errors.Wrap(ErrAlreadyWorking, "FlushSync was called from inside a render or commit")
	}
	prev := r.executionContext
	r.executionContext |= batchedContext
	var err error
	if fn != nil {
		r.sched.RunWithPriority(scheduler.ImmediatePriority, func() {
			err = fn()
		})
	}
	r.executionContext = prev
	if prev == noContext {
		r.currentEventTime = lane.NoTimestamp
	}
	return appendError(err, r.flushSyncCallbackQueue())
}

// StartTransition marks updates scheduled by fn as transitions. They get
// their own lanes and may keep showing old content while suspended.
func (r *Reconciler) StartTransition(fn func()) {
	prev := r.isTransition
	r.isTransition = true
	defer func() { r.isTransition = prev }()
	fn()
}

// RunWithPriority runs fn with p as the priority for updates it schedules.
func (r *Reconciler) RunWithPriority(p scheduler.Priority, fn func()) {
	r.sched.RunWithPriority(p, fn)
}

// FlushDiscreteUpdates renders every pending discrete update right away.
func (r *Reconciler) FlushDiscreteUpdates() error {
	if r.executionContext&(batchedContext|renderContext|commitContext) != 0 {
		return nil
	}
	roots := r.rootsWithPendingDiscreteUpdates.ToSlice()
	r.rootsWithPendingDiscreteUpdates.Clear()
	now := r.sched.Now()
	for _, root := range roots {
		lane.MarkRootExpired(&root.RootLanes, root.Pending&lane.InputDiscreteLanes)
		r.ensureRootIsScheduled(root, now)
	}
	return r.flushSyncCallbackQueue()
}

func (r *Reconciler) flushSyncCallbackQueue() error {
	r.inSyncFlush++
	defer func() { r.inSyncFlush-- }()
	return r.sched.FlushSyncCallbackQueue()
}
