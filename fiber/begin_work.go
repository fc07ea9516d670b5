package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/pkg/errors"
)

// beginWork renders wip and returns the child to work on next, or nil
// when wip has no children to visit.
func (r *Reconciler) beginWork(current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.didReceiveUpdate = false
	if current != nil {
		switch {
		case !propsIdentical(current.MemoizedProps, wip.PendingProps) || r.hasLegacyContextChanged():
			r.didReceiveUpdate = true
		case !lane.IncludesSomeLane(renderLanes, wip.Lanes):
			// Nothing to do for this fiber. Its children may still have work.
			if bailout := kinds[wip.Kind].bailout; bailout != nil {
				return bailout(r, current, wip, renderLanes)
			}
			return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
		}
	}

	wip.Lanes = lane.NoLanes
	begin := kinds[wip.Kind].begin
	if begin == nil {
		return nil, errors.Wrapf(ErrInvalidChild, "cannot render %s", wip.Kind)
	}
	return begin(r, current, wip, renderLanes)
}

func (r *Reconciler) bailoutOnAlreadyFinishedWork(current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	if current != nil {
		wip.dependencies = current.dependencies
	}
	r.markSkippedUpdateLanes(wip.Lanes)

	if !lane.IncludesSomeLane(renderLanes, wip.ChildLanes) {
		// The whole subtree is done.
		return nil, nil
	}
	cloneChildFibers(wip)
	return wip.Child, nil
}

// cloneChildFibers replaces the children of wip, still shared with the
// current tree, by their alternates.
func cloneChildFibers(wip *Fiber) {
	child := wip.Child
	if child == nil {
		return
	}
	clone := createWorkInProgress(child, child.PendingProps)
	wip.Child = clone
	clone.Return = wip
	for child.Sibling != nil {
		child = child.Sibling
		clone.Sibling = createWorkInProgress(child, child.PendingProps)
		clone = clone.Sibling
		clone.Return = wip
	}
	clone.Sibling = nil
}

func (r *Reconciler) pushHostRootContext(wip *Fiber) {
	root := wip.StateNode.(*Root)
	r.pushTopLevelLegacyContext(wip, root.context, false)
	r.pushHostContainer(wip, root.container)
}

func beginHostRoot(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushHostRootContext(wip)
	if current == nil {
		return nil, errors.Wrap(ErrIncompleteRoot, "host root has no committed fiber")
	}

	prevChildren := rootElement(wip.MemoizedState)
	cloneUpdateQueue(current, wip)
	if err := r.processUpdateQueue(wip, wip.PendingProps, nil, renderLanes); err != nil {
		return nil, err
	}
	nextChildren := rootElement(wip.MemoizedState)
	if sameValue(prevChildren, nextChildren) {
		return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
	}
	if err := r.reconcileChildren(current, wip, nextChildren, renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

func bailoutHostRoot(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushHostRootContext(wip)
	return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
}

func beginHostComponent(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushHostContext(wip)

	typ := wip.hostType()
	nextProps := wip.PendingProps
	children := nextProps.Children()
	if r.host.ShouldSetTextContent(typ, nextProps) {
		// The host renders its own text; no child fiber is created for it.
		children = nil
	} else if current != nil && r.host.ShouldSetTextContent(typ, current.MemoizedProps) {
		wip.Flags |= ContentReset
	}

	markRef(current, wip)
	if err := r.reconcileChildren(current, wip, children, renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

func bailoutHostComponent(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushHostContext(wip)
	return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
}

func beginHostText(*Reconciler, *Fiber, *Fiber, lane.Lanes) (*Fiber, error) {
	return nil, nil
}

// beginFragment serves fragments and mode markers alike; both render
// their children as they are.
func beginFragment(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	if err := r.reconcileChildren(current, wip, wip.PendingProps.Children(), renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

func beginHostPortal(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushHostContainer(wip, wip.StateNode.(*portalState).container)
	children := wip.PendingProps.Children()
	var err error
	if current == nil {
		// Portal children are inserted one by one during the commit, since
		// no host parent collects them when it is created.
		wip.Child, err = r.reconcileChildFibers(wip, nil, children, renderLanes)
	} else {
		err = r.reconcileChildren(current, wip, children, renderLanes)
	}
	if err != nil {
		return nil, err
	}
	return wip.Child, nil
}

func bailoutHostPortal(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushHostContainer(wip, wip.StateNode.(*portalState).container)
	return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
}

func beginFunctionComponent(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	fn := wip.Type.(*Func)
	if fn.Render == nil {
		return nil, errors.Wrapf(ErrInvalidChild, "component %s has no render function", fn.Name)
	}

	r.prepareToReadContext(wip, renderLanes)
	children, err := r.renderWithHooks(current, wip, fn.Render, wip.PendingProps, renderLanes)
	if err != nil {
		return nil, err
	}

	if current != nil && !r.didReceiveUpdate {
		bailoutHooks(current, wip, renderLanes)
		return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
	}

	wip.Flags |= PerformedWork
	if err := r.reconcileChildren(current, wip, children, renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

func beginClassComponent(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	return r.updateClassComponent(current, wip, renderLanes)
}

func bailoutClassComponent(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	if isLegacyContextProvider(wip) {
		r.pushLegacyContextProvider(wip)
	}
	return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
}

func beginContextProvider(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	ctx := wip.Type.(*providerType).ctx
	oldProps := wip.MemoizedProps
	newProps := wip.PendingProps
	newValue := newProps[valueProp]

	r.pushProvider(wip, newValue)

	if oldProps != nil {
		if sameValue(oldProps[valueProp], newValue) {
			if sameValue(oldProps.Children(), newProps.Children()) && !r.hasLegacyContextChanged() {
				return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
			}
		} else {
			r.propagateContextChange(wip, ctx, renderLanes)
		}
	}

	if err := r.reconcileChildren(current, wip, newProps.Children(), renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

func bailoutContextProvider(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	r.pushProvider(wip, wip.MemoizedProps[valueProp])
	return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
}

func beginContextConsumer(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	ctx := wip.Type.(*consumerType).ctx
	render, ok := wip.PendingProps.Children().(func(value any) any)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidChild, "consumer of %s expects a render function as its only child", ctx.Name)
	}

	r.prepareToReadContext(wip, renderLanes)
	value := r.readContext(ctx)
	var children any
	if err := callSafely(func() error {
		children = render(value)
		return nil
	}); err != nil {
		return nil, err
	}

	wip.Flags |= PerformedWork
	if err := r.reconcileChildren(current, wip, children, renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

// offscreenState is the memoized state of a hidden offscreen fiber.
// baseLanes are the lanes its subtree skipped while it was hidden.
type offscreenState struct {
	baseLanes lane.Lanes
}

func beginOffscreen(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	wip.Lanes = lane.NoLanes
	nextProps := wip.PendingProps

	var prevState *offscreenState
	if current != nil {
		prevState, _ = current.MemoizedState.(*offscreenState)
	}

	if offscreenModeOf(nextProps) == OffscreenHidden {
		if !lane.IncludesSomeLane(renderLanes, lane.OffscreenLane) {
			// Defer the hidden subtree until the offscreen lane is rendered.
			nextBaseLanes := renderLanes
			if prevState != nil {
				nextBaseLanes |= prevState.baseLanes
			}
			wip.Lanes = lane.OffscreenLane
			wip.ChildLanes = lane.OffscreenLane
			wip.MemoizedState = &offscreenState{baseLanes: nextBaseLanes}
			r.pushRenderLanes(wip, nextBaseLanes)
			return nil, nil
		}
		// Rendering at the offscreen lane; resume what was skipped.
		wip.MemoizedState = &offscreenState{baseLanes: lane.NoLanes}
		subtreeLanes := renderLanes
		if prevState != nil {
			subtreeLanes = prevState.baseLanes
		}
		r.pushRenderLanes(wip, subtreeLanes)
	} else {
		subtreeLanes := renderLanes
		if prevState != nil {
			subtreeLanes |= prevState.baseLanes
		}
		wip.MemoizedState = nil
		r.pushRenderLanes(wip, subtreeLanes)
	}

	if err := r.reconcileChildren(current, wip, nextProps.Children(), renderLanes); err != nil {
		return nil, err
	}
	return wip.Child, nil
}

// suspendedMarker is the memoized state of a suspense boundary that shows
// its fallback.
type suspendedMarker struct{}

func beginSuspense(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	nextProps := wip.PendingProps
	primaryChildren := nextProps.Children()
	fallbackChildren := nextProps[fallbackProp]

	showFallback := wip.Flags&DidCapture != 0
	if showFallback {
		wip.Flags &^= DidCapture
	}

	if current == nil {
		if !showFallback {
			return mountSuspensePrimaryChildren(wip, primaryChildren, renderLanes), nil
		}
		fallback := mountSuspenseFallbackChildren(wip, primaryChildren, fallbackChildren, renderLanes)
		wip.Child.MemoizedState = &offscreenState{baseLanes: renderLanes}
		wip.MemoizedState = suspendedMarker{}
		return fallback, nil
	}

	if !showFallback {
		primary := updateSuspensePrimaryChildren(current, wip, primaryChildren)
		wip.MemoizedState = nil
		return primary, nil
	}

	fallback := updateSuspenseFallbackChildren(current, wip, primaryChildren, fallbackChildren, renderLanes)
	primary := wip.Child
	if prev, ok := current.Child.MemoizedState.(*offscreenState); ok {
		primary.MemoizedState = &offscreenState{baseLanes: prev.baseLanes | renderLanes}
	} else {
		primary.MemoizedState = &offscreenState{baseLanes: renderLanes}
	}
	// The primary children are not rendered while the fallback shows; the
	// work they still have stays on the primary fiber.
	primary.ChildLanes = current.ChildLanes &^ renderLanes
	wip.MemoizedState = suspendedMarker{}
	return fallback, nil
}

// bailoutSuspense keeps showing the fallback unless the primary children
// have work in this render.
func bailoutSuspense(r *Reconciler, current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	if wip.MemoizedState == nil {
		return r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
	}
	if primary := wip.Child; primary != nil && lane.IncludesSomeLane(renderLanes, primary.ChildLanes) {
		wip.Lanes = lane.NoLanes
		return beginSuspense(r, current, wip, renderLanes)
	}
	child, err := r.bailoutOnAlreadyFinishedWork(current, wip, renderLanes)
	if err != nil || child == nil {
		return nil, err
	}
	// Skip the primary children; only the fallback may have work.
	return child.Sibling, nil
}

func primaryChildProps(mode OffscreenMode, children any) Props {
	return Props{modeProp: mode, childrenProp: children}
}

func mountSuspensePrimaryChildren(wip *Fiber, children any, renderLanes lane.Lanes) *Fiber {
	primary := createFiberFromOffscreen(primaryChildProps(OffscreenVisible, children), wip.Mode, renderLanes, "")
	primary.Return = wip
	wip.Child = primary
	return primary
}

func mountSuspenseFallbackChildren(wip *Fiber, primaryChildren, fallbackChildren any, renderLanes lane.Lanes) *Fiber {
	primary := createFiberFromOffscreen(primaryChildProps(OffscreenHidden, primaryChildren), wip.Mode, lane.NoLanes, "")
	fallback := createFiberFromFragment(fallbackChildren, wip.Mode, renderLanes, "")
	primary.Return = wip
	fallback.Return = wip
	primary.Sibling = fallback
	wip.Child = primary
	return fallback
}

func updateSuspensePrimaryChildren(current, wip *Fiber, children any) *Fiber {
	currentPrimary := current.Child
	currentFallback := currentPrimary.Sibling

	primary := createWorkInProgress(currentPrimary, primaryChildProps(OffscreenVisible, children))
	primary.Return = wip
	primary.Sibling = nil
	if currentFallback != nil {
		// The fallback goes away before the primary children reappear.
		currentFallback.NextEffect = nil
		currentFallback.Flags = Deletion
		wip.FirstEffect = currentFallback
		wip.LastEffect = currentFallback
	}
	wip.Child = primary
	return primary
}

func updateSuspenseFallbackChildren(current, wip *Fiber, primaryChildren, fallbackChildren any, renderLanes lane.Lanes) *Fiber {
	currentPrimary := current.Child
	currentFallback := currentPrimary.Sibling

	primary := createWorkInProgress(currentPrimary, primaryChildProps(OffscreenHidden, primaryChildren))
	var fallback *Fiber
	if currentFallback != nil {
		fallback = createWorkInProgress(currentFallback, Props{childrenProp: fallbackChildren})
	} else {
		fallback = createFiberFromFragment(fallbackChildren, wip.Mode, renderLanes, "")
		fallback.Flags |= Placement
	}
	primary.Return = wip
	fallback.Return = wip
	primary.Sibling = fallback
	fallback.Sibling = nil
	wip.Child = primary
	return fallback
}
