package fiber

import (
	"slices"

	"github.com/delaneyj/fiberparty/lane"
)

// completeWork finishes wip once its children are complete: it pops what
// begin pushed, creates host nodes and flags the updates to commit.
func (r *Reconciler) completeWork(current, wip *Fiber, renderLanes lane.Lanes) (*Fiber, error) {
	if complete := kinds[wip.Kind].complete; complete != nil {
		return complete(r, current, wip, renderLanes)
	}
	return nil, nil
}

func completeHostRoot(r *Reconciler, current, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	popHostRoot(r, wip)
	if current == nil || current.Child == nil {
		// Clear whatever the container held before the first commit.
		wip.Flags |= Snapshot
	}
	return nil, nil
}

func completeHostPortal(r *Reconciler, _, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	popHostPortal(r, wip)
	return nil, nil
}

func completeClassComponent(r *Reconciler, _, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	popClassComponent(r, wip)
	return nil, nil
}

func completeContextProvider(r *Reconciler, _, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	popContextProvider(r, wip)
	return nil, nil
}

func completeHostComponent(r *Reconciler, current, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	r.popHostContext(wip)
	typ := wip.hostType()
	props := wip.PendingProps

	if current != nil && wip.StateNode != nil {
		oldProps := current.MemoizedProps
		if !propsIdentical(oldProps, props) {
			payload := r.host.PrepareUpdate(wip.StateNode, typ, oldProps, props, r.currentHostContext())
			wip.updatePayload = payload
			if payload != nil {
				wip.Flags |= Update
			}
		}
		if !sameRef(current.Ref, wip.Ref) {
			wip.Flags |= RefEffect
		}
		return nil, nil
	}

	// The host context is the parent's again now that wip's is popped.
	hostContext := r.currentHostContext()
	inst, err := r.host.CreateInstance(typ, props, r.rootHostContainer(), hostContext)
	if err != nil {
		return nil, err
	}
	r.appendAllChildren(inst, wip)
	wip.StateNode = inst
	if r.host.FinalizeInitialChildren(inst, typ, props, hostContext) {
		wip.Flags |= Update
	}
	if wip.Ref != nil {
		wip.Flags |= RefEffect
	}
	return nil, nil
}

func completeHostText(r *Reconciler, current, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	text := wip.pendingText()
	if current != nil && wip.StateNode != nil {
		if current.Text() != text {
			wip.Flags |= Update
		}
		return nil, nil
	}
	inst, err := r.host.CreateTextInstance(text, r.rootHostContainer(), r.currentHostContext())
	if err != nil {
		return nil, err
	}
	wip.StateNode = inst
	return nil, nil
}

func completeSuspense(r *Reconciler, current, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	nextDidTimeout := wip.MemoizedState != nil
	prevDidTimeout := current != nil && current.MemoizedState != nil

	if nextDidTimeout && !prevDidTimeout {
		if current == nil {
			// Nothing was visible here yet, so the fallback hides nothing.
			r.renderDidSuspend()
		} else {
			r.renderDidSuspendDelayIfPossible()
		}
	}
	if (nextDidTimeout && !prevDidTimeout) || wip.wakeables != nil {
		// Hide the primary children and listen for the retry.
		wip.Flags |= Update
	}
	return nil, nil
}

func completeOffscreen(r *Reconciler, current, wip *Fiber, _ lane.Lanes) (*Fiber, error) {
	popOffscreen(r, wip)
	nextHidden := wip.MemoizedState != nil
	if current != nil {
		prevHidden := current.MemoizedState != nil
		if prevHidden != nextHidden {
			wip.Flags |= Update
		}
	}
	if nextHidden && wip.Child != nil && lane.IncludesSomeLane(r.wipRootRenderLanes, lane.OffscreenLane) {
		// Children rendered at the offscreen lane are inserted visible.
		wip.Flags |= Update
	}
	return nil, nil
}

// appendAllChildren attaches the topmost host nodes below wip to parent.
// Portals keep their children to themselves.
func (r *Reconciler) appendAllChildren(parent any, wip *Fiber) {
	for _, n := range hostNodesBelow(wip, func(f *Fiber) bool {
		return f.Kind == KindHostPortal
	}) {
		r.host.AppendInitialChild(parent, n.StateNode)
	}
}

// hostNodesBelow returns the topmost host fibers in the subtree of f, in
// tree order. Subtrees whose root satisfies prune are skipped.
func hostNodesBelow(f *Fiber, prune func(*Fiber) bool) []*Fiber {
	var nodes []*Fiber
	stack := pushChildren(nil, f)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch {
		case n.Kind == KindHostComponent || n.Kind == KindHostText:
			nodes = append(nodes, n)
		case prune != nil && prune(n):
		default:
			stack = pushChildren(stack, n)
		}
	}
	return nodes
}

// pushChildren pushes the children of f so that the first child is on
// top of the stack.
func pushChildren(stack []*Fiber, f *Fiber) []*Fiber {
	start := len(stack)
	for c := f.Child; c != nil; c = c.Sibling {
		stack = append(stack, c)
	}
	slices.Reverse(stack[start:])
	return stack
}
