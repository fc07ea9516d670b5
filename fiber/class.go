package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/pkg/errors"
)

// Instance is a class component instance. Implementations embed Base and
// may implement any of the lifecycle interfaces below.
type Instance interface {
	Render() (any, error)
	base() *Base
}

type Mounter interface {
	DidMount() error
}

type Updater interface {
	DidUpdate(prevProps Props, prevState State, snapshot any) error
}

type Unmounter interface {
	WillUnmount() error
}

// ShouldUpdater lets an instance skip re-rendering.
type ShouldUpdater interface {
	ShouldUpdate(nextProps Props, nextState State) bool
}

// SnapshotGetter captures host state before the mutation pass overwrites
// it. The result is handed to DidUpdate.
type SnapshotGetter interface {
	SnapshotBeforeUpdate(prevProps Props, prevState State) (any, error)
}

// ErrorCatcher makes an instance an error boundary. DidCatch runs in the
// layout pass after the boundary rendered its captured state.
type ErrorCatcher interface {
	DidCatch(err error) error
}

// ChildContextProvider supplies legacy context to every descendant.
type ChildContextProvider interface {
	ChildContext() map[string]any
}

// Base carries the bookkeeping shared by every class instance.
type Base struct {
	r     *Reconciler
	fiber *Fiber

	props         Props
	state         State
	context       any
	legacyContext map[string]any

	snapshot           any
	mergedChildContext map[string]any
}

func (b *Base) base() *Base { return b }

func (b *Base) Props() Props { return b.props }

func (b *Base) State() State { return b.state }

// Context returns the value of the class's ContextType.
func (b *Base) Context() any { return b.context }

// LegacyContext returns the merged child context of every provider above
// the instance.
func (b *Base) LegacyContext() map[string]any { return b.legacyContext }

// SetState enqueues a shallow merge of partial into the state. partial may
// be a StateUpdater. callback runs after the update is committed.
func (b *Base) SetState(partial any, callback func() error) {
	b.enqueue(UpdateState, partial, callback)
}

func (b *Base) ReplaceState(state any, callback func() error) {
	b.enqueue(ReplaceState, state, callback)
}

// ForceUpdate re-renders the instance even if ShouldUpdate says no.
func (b *Base) ForceUpdate(callback func() error) {
	b.enqueue(ForceUpdate, nil, callback)
}

func (b *Base) enqueue(tag UpdateTag, payload any, callback func() error) {
	r, f := b.r, b.fiber
	if r == nil || f == nil {
		return
	}
	eventTime := r.requestEventTime()
	l := r.requestUpdateLane(f)
	u := createUpdate(eventTime, l)
	u.Tag = tag
	u.Payload = payload
	u.Callback = callback
	enqueueUpdate(f, u)
	if err := r.scheduleUpdateOnFiber(f, l, eventTime); err != nil {
		r.reportError(nil, err)
	}
}

func isErrorBoundary(f *Fiber) bool {
	cls, ok := f.Type.(*Class)
	if !ok {
		return false
	}
	if cls.DerivedStateFromError != nil {
		return true
	}
	_, ok = f.StateNode.(ErrorCatcher)
	return ok
}

func (r *Reconciler) constructClassInstance(wip *Fiber, cls *Class, props Props) {
	inst := cls.New(props)
	b := inst.base()
	b.r = r
	b.fiber = wip
	b.props = props

	var state State
	if cls.InitialState != nil {
		state = cls.InitialState(props)
	}
	wip.MemoizedState = state
	wip.StateNode = inst
}

func (r *Reconciler) mountClassInstance(wip *Fiber, cls *Class, props Props, renderLanes lane.Lanes) error {
	inst := wip.StateNode.(Instance)
	b := inst.base()
	b.props = props
	b.state = wip.MemoizedState
	b.legacyContext = r.unmaskedLegacyContext(wip)
	if cls.ContextType != nil {
		b.context = r.readContext(cls.ContextType)
	}

	if wip.updateQueue == nil {
		// A resumed mount keeps its queue, which may hold a captured error.
		initializeUpdateQueue(wip)
	}
	if err := r.processUpdateQueue(wip, props, inst, renderLanes); err != nil {
		return err
	}
	if cls.DerivedStateFromProps != nil {
		applyDerivedStateFromProps(wip, cls, props)
	}
	b.state = wip.MemoizedState

	if _, ok := inst.(Mounter); ok {
		wip.Flags |= Update
	}
	return nil
}

func applyDerivedStateFromProps(wip *Fiber, cls *Class, props Props) {
	prev := wip.MemoizedState
	next := prev
	if partial := cls.DerivedStateFromProps(props, prev); partial != nil {
		next = mergeState(prev, partial)
	}
	wip.MemoizedState = next
	if wip.Lanes == lane.NoLanes {
		wip.updateQueue.baseState = next
	}
}

// updateClassInstance processes pending state and reports whether the
// instance must re-render.
func (r *Reconciler) updateClassInstance(current, wip *Fiber, cls *Class, newProps Props, renderLanes lane.Lanes) (bool, error) {
	inst := wip.StateNode.(Instance)
	b := inst.base()
	b.fiber = wip
	cloneUpdateQueue(current, wip)

	oldProps := wip.MemoizedProps
	oldState := wip.MemoizedState
	oldContext := b.context
	nextContext := oldContext
	if cls.ContextType != nil {
		nextContext = r.readContext(cls.ContextType)
	}

	if err := r.processUpdateQueue(wip, newProps, inst, renderLanes); err != nil {
		return false, err
	}
	newState := wip.MemoizedState

	markLifecycles := func() {
		if !propsIdentical(oldProps, current.MemoizedProps) || !sameValue(oldState, current.MemoizedState) {
			if _, ok := inst.(Updater); ok {
				wip.Flags |= Update
			}
			if _, ok := inst.(SnapshotGetter); ok {
				wip.Flags |= Snapshot
			}
		}
	}

	if propsIdentical(oldProps, newProps) && sameValue(oldState, newState) &&
		sameValue(oldContext, nextContext) && !r.hasLegacyContextChanged() && !r.hasForceUpdate {
		markLifecycles()
		return false, nil
	}

	if cls.DerivedStateFromProps != nil {
		applyDerivedStateFromProps(wip, cls, newProps)
		newState = wip.MemoizedState
	}

	shouldUpdate := r.hasForceUpdate
	if !shouldUpdate {
		shouldUpdate = true
		if su, ok := inst.(ShouldUpdater); ok {
			shouldUpdate = su.ShouldUpdate(newProps, newState)
		}
	}

	if shouldUpdate {
		if _, ok := inst.(Updater); ok {
			wip.Flags |= Update
		}
		if _, ok := inst.(SnapshotGetter); ok {
			wip.Flags |= Snapshot
		}
	} else {
		markLifecycles()
		wip.MemoizedProps = newProps
		wip.MemoizedState = newState
	}

	b.props = newProps
	b.state = newState
	b.context = nextContext
	b.legacyContext = r.unmaskedLegacyContext(wip)
	return shouldUpdate, nil
}

func (r *Reconciler) updateClassComponent(current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	cls := wip.Type.(*Class)
	props := wip.PendingProps
	r.prepareToReadContext(wip, renderLanes)

	mounting := wip.StateNode == nil
	if mounting {
		if cls.New == nil {
			return nil, errors.Wrapf(ErrInvalidChild, "class %s has no constructor", cls.Name)
		}
		r.constructClassInstance(wip, cls, props)
	}
	hasContext := isLegacyContextProvider(wip)
	if hasContext {
		r.pushLegacyContextProvider(wip)
	}

	shouldUpdate := true
	if mounting || current == nil {
		// current is nil with an instance when an earlier mount attempt
		// was interrupted; the instance is reused as is.
		if err := r.mountClassInstance(wip, cls, props, renderLanes); err != nil {
			return nil, err
		}
	} else {
		var err error
		if shouldUpdate, err = r.updateClassInstance(current, wip, cls, props, renderLanes); err != nil {
			return nil, err
		}
	}

	return r.finishClassComponent(current, wip, cls, shouldUpdate, hasContext, renderLanes)
}

func (r *Reconciler) finishClassComponent(current, wip *Fiber, cls *Class, shouldUpdate, hasContext bool, renderLanes lane.Lanes) (*Fiber, error) {
	markRef(current, wip)

	didCaptureError := wip.Flags&DidCapture != 0
	if !shouldUpdate && !didCaptureError {
		if hasContext {
			r.invalidateLegacyContextProvider(wip, false)
		}
		return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
	}

	inst := wip.StateNode.(Instance)
	var next any
	if didCaptureError && cls.DerivedStateFromError == nil {
		// Without derived error state there is nothing to render until
		// DidCatch sets state in the layout pass.
		next = nil
	} else {
		children, err := inst.Render()
		if err != nil {
			return nil, err
		}
		next = children
	}

	wip.Flags |= PerformedWork
	if current != nil && didCaptureError {
		// Remount instead of reconciling against the children that failed.
		var err error
		if wip.Child, err = r.reconcileChildFibers(wip, current.Child, nil, renderLanes); err != nil {
			return nil, err
		}
		if wip.Child, err = r.reconcileChildFibers(wip, nil, next, renderLanes); err != nil {
			return nil, err
		}
	} else if err := r.reconcileChildren(current, wip, next, renderLanes); err != nil {
		return nil, err
	}

	wip.MemoizedState = inst.base().state
	if hasContext {
		r.invalidateLegacyContextProvider(wip, true)
	}
	return wip.Child, nil
}

// createClassErrorUpdate builds the capture update that lets boundary f
// render err.
func (r *Reconciler) createClassErrorUpdate(f *Fiber, err error, l lane.Lane) *StateUpdate {
	u := createUpdate(lane.NoTimestamp, l)
	u.Tag = CaptureUpdate
	cls := f.Type.(*Class)
	if derive := cls.DerivedStateFromError; derive != nil {
		u.Payload = StateUpdater(func(State, Props) (State, error) {
			return derive(err), nil
		})
	}
	inst, _ := f.StateNode.(Instance)
	if catcher, ok := inst.(ErrorCatcher); ok {
		u.Callback = func() error {
			if cls.DerivedStateFromError == nil {
				// Catching again without having rendered the error would
				// loop forever.
				r.failedBoundaries.Add(inst)
			}
			return catcher.DidCatch(err)
		}
	}
	return u
}
