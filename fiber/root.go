package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
)

type RootTag uint8

const (
	// LegacyRoot renders every update synchronously.
	LegacyRoot RootTag = iota
	ConcurrentRoot
)

func (t RootTag) String() string {
	if t == LegacyRoot {
		return "legacy"
	}
	return "concurrent"
}

const rootElementKey = "element"

// Root is one mounted tree. Its lane bookkeeping is mutated in place for
// the whole life of the root.
type Root struct {
	lane.RootLanes

	tag       RootTag
	container any
	current   *Fiber

	finishedWork  *Fiber
	finishedLanes lane.Lanes

	// callbackNode is nil for work queued on the sync callback queue;
	// callbackPriority tells whether any callback is scheduled.
	callbackNode     *scheduler.Task
	callbackPriority lane.Priority
	// syncGen invalidates sync callbacks queued before a reschedule.
	syncGen uint64

	pingCache map[Wakeable]lane.Lanes

	// context is the legacy context handed to the top of the tree.
	context map[string]any

	r         *Reconciler
	unmounted bool
}

type rootConfig struct {
	tag RootTag
}

type RootOption func(*rootConfig)

// Legacy makes the root render every update synchronously.
func Legacy() RootOption {
	return func(c *rootConfig) {
		c.tag = LegacyRoot
	}
}

func newRoot(r *Reconciler, container any, tag RootTag) *Root {
	root := &Root{
		RootLanes: lane.NewRootLanes(),
		tag:       tag,
		container: container,
		context:   map[string]any{},
		r:         r,
	}
	f := createHostRootFiber(tag)
	f.StateNode = root
	f.MemoizedState = map[string]any{rootElementKey: nil}
	initializeUpdateQueue(f)
	root.current = f
	return root
}

func (root *Root) Tag() RootTag {
	return root.tag
}

func (root *Root) Container() any {
	return root.container
}

// Current returns the HostRoot fiber of the committed tree.
func (root *Root) Current() *Fiber {
	return root.current
}

// PendingLanes returns the lanes that still have unfinished work.
func (root *Root) PendingLanes() lane.Lanes {
	return root.Pending
}

// Render schedules el as the content of the root. The first render of a
// legacy root is flushed synchronously outside of any batch.
func (root *Root) Render(el any) error {
	r := root.r
	if root.tag == LegacyRoot && root.current.Child == nil {
		return r.UnbatchedUpdates(func() error {
			_, err := r.UpdateContainer(el, root, nil)
			return err
		})
	}
	_, err := r.UpdateContainer(el, root, nil)
	return err
}

func rootElement(state any) any {
	if m, ok := state.(map[string]any); ok {
		return m[rootElementKey]
	}
	return nil
}
