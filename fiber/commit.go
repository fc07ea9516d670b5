package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// commitRoot applies root.finishedWork to the host. It always runs at
// immediate priority so updates scheduled by commit effects are sync.
func (r *Reconciler) commitRoot(root *Root) error {
	var err error
	r.sched.RunWithPriority(scheduler.ImmediatePriority, func() {
		err = r.commitRootImpl(root)
	})
	return err
}

func (r *Reconciler) commitRootImpl(root *Root) error {
	// Passive effects of the previous commit run before anything of this
	// one.
	_, errs := r.FlushPassiveEffects()

	if r.executionContext&(renderContext|commitContext) != 0 {
		return appendError(errs, errors.Wrap(ErrAlreadyWorking, "commit"))
	}

	finished := root.finishedWork
	lanes := root.finishedLanes
	if finished == nil {
		return errs
	}
	root.finishedWork = nil
	root.finishedLanes = lane.NoLanes
	if finished == root.current {
		return appendError(errs, errors.WithStack(ErrSameTreeCommit))
	}

	// The task that rendered this tree is done; whatever is left is
	// scheduled afresh below.
	r.cancelRootCallback(root)

	remaining := finished.Lanes | finished.ChildLanes
	lane.MarkRootFinished(&root.RootLanes, remaining)
	if !lane.IncludesSomeLane(remaining, lane.InputDiscreteLanes) {
		r.rootsWithPendingDiscreteUpdates.Remove(root)
	}
	if root == r.wipRoot {
		r.wipRoot = nil
		r.wip = nil
		r.wipRootRenderLanes = lane.NoLanes
	}

	// The root is last in its own effect list.
	first := finished.FirstEffect
	if finished.Flags > PerformedWork {
		if finished.LastEffect != nil {
			finished.LastEffect.NextEffect = finished
		} else {
			first = finished
		}
	}

	effects := 0
	if first != nil {
		prev := r.executionContext
		r.executionContext |= commitContext

		r.host.PrepareForCommit(root.container)
		r.commitBeforeMutationEffects(first)
		r.commitMutationEffects(first)
		r.host.ResetAfterCommit(root.container)

		// Unmount callbacks above saw the old tree; layout effects below
		// see the new one.
		root.current = finished

		effects = r.commitLayoutEffects(first)
		r.executionContext = prev
	} else {
		root.current = finished
	}

	r.log.WithFields(logrus.Fields{
		"lanes":   lanes,
		"effects": effects,
		"root":    root.tag,
	}).Debug("committed root")

	if r.rootDoesHavePassiveEffects {
		r.rootDoesHavePassiveEffects = false
		r.rootWithPendingPassiveEffects = root
		r.pendingPassiveEffectsLanes = lanes
	}
	// Passive effects were queued with their fibers, so the effect list
	// is no longer needed.
	for e := first; e != nil; {
		next := e.NextEffect
		e.NextEffect = nil
		e = next
	}

	remaining = root.Pending
	if remaining == lane.NoLanes {
		r.failedBoundaries.Clear()
	}
	if remaining == lane.SyncLane {
		// Count synchronous re-renders triggered by this commit's effects.
		if root == r.rootWithNestedUpdates {
			r.nestedUpdateCount++
		} else {
			r.nestedUpdateCount = 0
			r.rootWithNestedUpdates = root
		}
	} else {
		r.nestedUpdateCount = 0
	}

	r.ensureRootIsScheduled(root, r.sched.Now())

	errs = appendError(errs, r.uncaughtErrors)
	r.uncaughtErrors = nil

	if r.executionContext&legacyUnbatchedContext != 0 {
		// The legacy mount in progress flushes when it is done.
		return errs
	}
	return appendError(errs, r.flushSyncCallbackQueue())
}

func (r *Reconciler) commitBeforeMutationEffects(first *Fiber) {
	for e := first; e != nil; e = e.NextEffect {
		if e.Flags&Snapshot != 0 {
			if snapshot := kinds[e.Kind].commitSnapshot; snapshot != nil {
				r.commitError(e, snapshot(r, e.Alternate, e))
			}
		}
		if e.Flags&Passive != 0 {
			r.schedulePassiveFlush()
		}
	}
}

func (r *Reconciler) commitMutationEffects(first *Fiber) {
	for e := first; e != nil; e = e.NextEffect {
		flags := e.Flags
		if flags&ContentReset != 0 {
			r.host.ResetTextContent(e.StateNode)
		}
		if flags&RefEffect != 0 {
			if current := e.Alternate; current != nil {
				r.commitError(e, commitDetachRef(current))
			}
		}

		switch flags & (Placement | Update | Deletion) {
		case Placement:
			r.commitPlacement(e)
			// Later placements use e as a stable sibling.
			e.Flags &^= Placement
		case PlacementAndUpdate:
			r.commitPlacement(e)
			e.Flags &^= Placement
			r.commitWork(e.Alternate, e)
		case Update:
			r.commitWork(e.Alternate, e)
		case Deletion:
			r.commitDeletion(e)
		}
	}
}

func (r *Reconciler) commitWork(current, finished *Fiber) {
	if update := kinds[finished.Kind].commitUpdate; update != nil {
		r.commitError(finished, update(r, current, finished))
	}
}

// commitLayoutEffects runs mount and update lifecycles and attaches refs.
// It returns the number of effects visited.
func (r *Reconciler) commitLayoutEffects(first *Fiber) int {
	n := 0
	for e := first; e != nil; e = e.NextEffect {
		n++
		if e.Flags&(Update|Callback) != 0 {
			if layout := kinds[e.Kind].commitLayout; layout != nil {
				r.commitError(e, layout(r, e.Alternate, e))
			}
		}
		if e.Flags&RefEffect != 0 {
			r.commitError(e, r.commitAttachRef(e))
		}
	}
	return n
}

// commitError routes an error raised by source during a commit. Errors no
// boundary captures are returned from the commit.
func (r *Reconciler) commitError(source *Fiber, err error) {
	if err == nil {
		return
	}
	r.uncaughtErrors = appendError(r.uncaughtErrors, r.captureCommitPhaseError(source, err))
}

// captureCommitPhaseError schedules a sync re-render of the nearest error
// boundary above source with err as its captured error. It returns err
// when no boundary can take it.
func (r *Reconciler) captureCommitPhaseError(source *Fiber, err error) error {
	for f := source.Return; f != nil; f = f.Return {
		if f.Kind == KindHostRoot {
			break
		}
		if f.Kind != KindClass || !isErrorBoundary(f) {
			continue
		}
		if inst, ok := f.StateNode.(Instance); ok && r.failedBoundaries.Contains(inst) {
			continue
		}
		u := r.createClassErrorUpdate(f, err, lane.SyncLane)
		enqueueUpdate(f, u)
		eventTime := r.requestEventTime()
		root := markUpdateLaneFromFiberToRoot(f, lane.SyncLane)
		if root == nil {
			break
		}
		lane.MarkRootUpdated(&root.RootLanes, lane.SyncLane, eventTime)
		r.ensureRootIsScheduled(root, eventTime)
		return nil
	}
	return err
}
