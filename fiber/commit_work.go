package fiber

// hostParent returns the host node that f's host children attach to and
// whether it is a container.
func hostParent(f *Fiber) (any, bool) {
	switch f.Kind {
	case KindHostComponent:
		return f.StateNode, false
	case KindHostRoot:
		return f.StateNode.(*Root).container, true
	case KindHostPortal:
		return f.StateNode.(*portalState).container, true
	}
	return nil, false
}

func getHostParentFiber(f *Fiber) *Fiber {
	for parent := f.Return; parent != nil; parent = parent.Return {
		if parent.isHostParent() {
			return parent
		}
	}
	return nil
}

// getHostSibling finds the host node f's nodes must be inserted before:
// the first following host node that is not itself being placed. It
// returns nil when f's nodes go last.
func getHostSibling(f *Fiber) any {
	node := f
siblings:
	for {
		for node.Sibling == nil {
			if node.Return == nil || node.Return.isHostParent() {
				return nil
			}
			node = node.Return
		}
		node.Sibling.Return = node.Return
		node = node.Sibling
		for node.Kind != KindHostComponent && node.Kind != KindHostText {
			if node.Flags&Placement != 0 || node.Child == nil || node.Kind == KindHostPortal {
				// Moving or leading elsewhere; it cannot anchor f.
				continue siblings
			}
			node.Child.Return = node
			node = node.Child
		}
		if node.Flags&Placement == 0 {
			return node.StateNode
		}
	}
}

func (r *Reconciler) commitPlacement(finished *Fiber) {
	parentFiber := getHostParentFiber(finished)
	if parentFiber == nil {
		return
	}
	parent, isContainer := hostParent(parentFiber)
	if parentFiber.Flags&ContentReset != 0 {
		r.host.ResetTextContent(parent)
		parentFiber.Flags &^= ContentReset
	}
	before := getHostSibling(finished)
	r.insertOrAppendPlacementNode(finished, before, parent, isContainer)
}

func (r *Reconciler) insertOrAppendPlacementNode(f *Fiber, before, parent any, isContainer bool) {
	switch f.Kind {
	case KindHostComponent, KindHostText:
		switch {
		case before != nil && isContainer:
			r.host.InsertInContainerBefore(parent, f.StateNode, before)
		case before != nil:
			r.host.InsertBefore(parent, f.StateNode, before)
		case isContainer:
			r.host.AppendChildToContainer(parent, f.StateNode)
		default:
			r.host.AppendChild(parent, f.StateNode)
		}
	case KindHostPortal:
		// The portal's children are placed into its own container.
	default:
		for child := f.Child; child != nil; child = child.Sibling {
			r.insertOrAppendPlacementNode(child, before, parent, isContainer)
		}
	}
}

// commitDeletion removes current's host nodes and runs the unmount
// callbacks of its whole subtree.
func (r *Reconciler) commitDeletion(current *Fiber) {
	r.unmountHostComponents(current)
	detachFiberMutation(current)
}

func (r *Reconciler) unmountHostComponents(deleted *Fiber) {
	var (
		parent      any
		isContainer bool
		parentValid bool
	)
	node := deleted
	for {
		if !parentValid {
			parentFiber := getHostParentFiber(node)
			if parentFiber == nil {
				return
			}
			parent, isContainer = hostParent(parentFiber)
			parentValid = true
		}

		switch {
		case node.Kind == KindHostComponent || node.Kind == KindHostText:
			r.commitNestedUnmounts(node)
			// Every callback below node has run; its host node can go.
			if isContainer {
				r.host.RemoveChildFromContainer(parent, node.StateNode)
			} else {
				r.host.RemoveChild(parent, node.StateNode)
			}
		case node.Kind == KindHostPortal:
			if node.Child != nil {
				parent = node.StateNode.(*portalState).container
				isContainer = true
				node.Child.Return = node
				node = node.Child
				continue
			}
		default:
			r.commitUnmount(node)
			if node.Child != nil {
				node.Child.Return = node
				node = node.Child
				continue
			}
		}

		if node == deleted {
			return
		}
		for node.Sibling == nil {
			if node.Return == nil || node.Return == deleted {
				return
			}
			node = node.Return
			if node.Kind == KindHostPortal {
				// Back out of the portal's container.
				parentValid = false
			}
		}
		node.Sibling.Return = node.Return
		node = node.Sibling
	}
}

// commitNestedUnmounts runs the unmount callbacks of root's subtree
// without touching host nodes, which go away with root's.
func (r *Reconciler) commitNestedUnmounts(root *Fiber) {
	node := root
	for {
		r.commitUnmount(node)
		// Portals remove their own children from their containers.
		if node.Child != nil && node.Kind != KindHostPortal {
			node.Child.Return = node
			node = node.Child
			continue
		}
		if node == root {
			return
		}
		for node.Sibling == nil {
			if node.Return == nil || node.Return == root {
				return
			}
			node = node.Return
		}
		node.Sibling.Return = node.Return
		node = node.Sibling
	}
}

func (r *Reconciler) commitUnmount(current *Fiber) {
	if unmount := kinds[current.Kind].commitUnmount; unmount != nil {
		r.commitError(current, unmount(r, current))
	}
}

// detachFiberMutation cuts a deleted fiber off its parent so late updates
// on it go nowhere. NextEffect stays, the commit is still walking it.
func detachFiberMutation(f *Fiber) {
	if alt := f.Alternate; alt != nil {
		alt.Return = nil
		alt.updateQueue = nil
	}
	f.Return = nil
	f.updateQueue = nil
}

// hideOrUnhideAllChildren toggles the visibility of the topmost host
// nodes below f. Nested hidden offscreen subtrees keep theirs.
func (r *Reconciler) hideOrUnhideAllChildren(f *Fiber, hide bool) {
	nodes := hostNodesBelow(f, func(n *Fiber) bool {
		return n.Kind == KindOffscreen && n.MemoizedState != nil
	})
	for _, n := range nodes {
		switch {
		case n.Kind == KindHostText && hide:
			r.host.HideTextInstance(n.StateNode)
		case n.Kind == KindHostText:
			r.host.UnhideTextInstance(n.StateNode, n.Text())
		case hide:
			r.host.HideInstance(n.StateNode)
		default:
			r.host.UnhideInstance(n.StateNode, n.MemoizedProps)
		}
	}
}

// commitHookEffectListUnmount runs the cleanups of f's effects carrying
// every bit of tag.
func commitHookEffectListUnmount(tag hookEffectTag, f *Fiber) error {
	var errs error
	for _, e := range f.hookEffects {
		if e.tag&tag != tag {
			continue
		}
		destroy := e.destroy
		e.destroy = nil
		if destroy != nil {
			errs = appendError(errs, callSafely(destroy))
		}
	}
	return errs
}

func commitHookEffectListMount(tag hookEffectTag, f *Fiber) error {
	var errs error
	for _, e := range f.hookEffects {
		if e.tag&tag != tag {
			continue
		}
		errs = appendError(errs, runEffectCreate(e))
	}
	return errs
}

func runEffectCreate(e *hookEffect) error {
	return callSafely(func() error {
		destroy, err := e.create()
		e.destroy = destroy
		return err
	})
}

// schedulePassiveEffects queues f's changed passive effects: every
// cleanup runs before any of the new effects.
func (r *Reconciler) schedulePassiveEffects(f *Fiber) {
	for _, e := range f.hookEffects {
		if e.tag&(hookPassive|hookHasEffect) != hookPassive|hookHasEffect {
			continue
		}
		r.enqueuePendingPassiveHookEffectUnmount(f, e)
		r.enqueuePendingPassiveHookEffectMount(f, e)
	}
}

func commitFunctionUpdate(_ *Reconciler, _, finished *Fiber) error {
	return commitHookEffectListUnmount(hookLayout|hookHasEffect, finished)
}

func commitFunctionLayout(r *Reconciler, _, finished *Fiber) error {
	err := commitHookEffectListMount(hookLayout|hookHasEffect, finished)
	r.schedulePassiveEffects(finished)
	return err
}

func commitFunctionUnmount(r *Reconciler, current *Fiber) error {
	var errs error
	for _, e := range current.hookEffects {
		if e.destroy == nil {
			continue
		}
		if e.tag&hookPassive != 0 {
			r.enqueuePendingPassiveHookEffectUnmount(current, e)
			continue
		}
		destroy := e.destroy
		e.destroy = nil
		errs = appendError(errs, callSafely(destroy))
	}
	return errs
}

func commitClassSnapshot(_ *Reconciler, current, finished *Fiber) error {
	if current == nil {
		return nil
	}
	inst := finished.StateNode.(Instance)
	getter, ok := inst.(SnapshotGetter)
	if !ok {
		return nil
	}
	return callSafely(func() error {
		snapshot, err := getter.SnapshotBeforeUpdate(current.MemoizedProps, current.MemoizedState)
		inst.base().snapshot = snapshot
		return err
	})
}

func commitClassLayout(_ *Reconciler, current, finished *Fiber) error {
	inst := finished.StateNode.(Instance)
	b := inst.base()
	b.fiber = finished
	b.props = finished.MemoizedProps
	b.state = finished.MemoizedState

	var errs error
	if finished.Flags&Update != 0 {
		if current == nil {
			if m, ok := inst.(Mounter); ok {
				errs = appendError(errs, callSafely(m.DidMount))
			}
		} else if u, ok := inst.(Updater); ok {
			snapshot := b.snapshot
			b.snapshot = nil
			errs = appendError(errs, callSafely(func() error {
				return u.DidUpdate(current.MemoizedProps, current.MemoizedState, snapshot)
			}))
		}
	}
	if q := finished.updateQueue; q != nil {
		errs = appendError(errs, commitUpdateQueue(q))
	}
	return errs
}

func commitClassUnmount(r *Reconciler, current *Fiber) error {
	err := commitDetachRef(current)
	if u, ok := current.StateNode.(Unmounter); ok {
		err = appendError(err, callSafely(u.WillUnmount))
	}
	return err
}

func commitHostRootSnapshot(r *Reconciler, _, finished *Fiber) error {
	r.host.ClearContainer(finished.StateNode.(*Root).container)
	return nil
}

func commitHostRootLayout(_ *Reconciler, _, finished *Fiber) error {
	if q := finished.updateQueue; q != nil {
		return commitUpdateQueue(q)
	}
	return nil
}

func commitHostComponentUpdate(r *Reconciler, current, finished *Fiber) error {
	payload := finished.updatePayload
	finished.updatePayload = nil
	if payload == nil || current == nil {
		return nil
	}
	r.host.CommitUpdate(finished.StateNode, payload, finished.hostType(), current.MemoizedProps, finished.MemoizedProps)
	return nil
}

func commitHostComponentLayout(r *Reconciler, current, finished *Fiber) error {
	if current == nil && finished.Flags&Update != 0 {
		r.host.CommitMount(finished.StateNode, finished.hostType(), finished.MemoizedProps)
	}
	return nil
}

func commitHostComponentUnmount(_ *Reconciler, current *Fiber) error {
	return commitDetachRef(current)
}

func commitHostTextUpdate(r *Reconciler, current, finished *Fiber) error {
	oldText := finished.Text()
	if current != nil {
		oldText = current.Text()
	}
	r.host.CommitTextUpdate(finished.StateNode, oldText, finished.Text())
	return nil
}

func commitHostPortalUnmount(r *Reconciler, current *Fiber) error {
	r.unmountHostComponents(current)
	return nil
}

func commitSuspenseUpdate(r *Reconciler, _, finished *Fiber) error {
	if finished.MemoizedState != nil {
		// Showing the fallback; the primary children stay mounted but
		// hidden.
		if primary := finished.Child; primary != nil {
			r.hideOrUnhideAllChildren(primary, true)
		}
	}
	r.attachRetryListeners(finished)
	return nil
}

func commitOffscreenUpdate(r *Reconciler, _, finished *Fiber) error {
	r.hideOrUnhideAllChildren(finished, finished.MemoizedState != nil)
	return nil
}
