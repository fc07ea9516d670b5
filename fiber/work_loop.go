package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// requestEventTime returns the time of the event being handled. Inside a
// batch or event every update shares the same time.
func (r *Reconciler) requestEventTime() lane.Timestamp {
	if r.executionContext&(renderContext|commitContext) != 0 {
		return r.sched.Now()
	}
	if r.executionContext == noContext {
		return r.sched.Now()
	}
	if r.currentEventTime == lane.NoTimestamp {
		r.currentEventTime = r.sched.Now()
	}
	return r.currentEventTime
}

func (r *Reconciler) requestUpdateLane(f *Fiber) lane.Lane {
	if f.Mode&ModeBlocking == 0 {
		return lane.SyncLane
	}
	if r.executionContext&renderContext != 0 && r.wipRootRenderLanes != lane.NoLanes {
		// Updates made while rendering belong to the render in progress.
		return lane.PickArbitraryLane(r.wipRootRenderLanes)
	}

	// Updates of the same event avoid the lanes of the render in progress
	// so they do not interrupt it needlessly.
	if r.currentEventWipLanes == lane.NoLanes {
		r.currentEventWipLanes = r.wipRootIncludedLanes
	}

	if r.isTransition {
		if r.currentEventPendingLanes == lane.NoLanes && r.mostRecentlyUpdatedRoot != nil {
			r.currentEventPendingLanes = r.mostRecentlyUpdatedRoot.Pending
		}
		return lane.FindTransitionLane(r.currentEventWipLanes, r.currentEventPendingLanes)
	}

	p := schedulerPriorityToLanePriority(r.sched.CurrentPriority())
	if r.executionContext&discreteEventContext != 0 && r.sched.CurrentPriority() == scheduler.UserBlockingPriority {
		p = lane.InputDiscretePriority
	}
	if p == lane.NoPriority {
		p = lane.DefaultPriority
	}
	return lane.FindUpdateLane(p, r.currentEventWipLanes)
}

func (r *Reconciler) requestRetryLane(f *Fiber) lane.Lane {
	if f.Mode&ModeBlocking == 0 {
		return lane.SyncLane
	}
	if r.currentEventWipLanes == lane.NoLanes {
		r.currentEventWipLanes = r.wipRootIncludedLanes
	}
	return lane.FindRetryLane(r.currentEventWipLanes)
}

func (r *Reconciler) resetEvent() {
	r.currentEventTime = lane.NoTimestamp
	r.currentEventWipLanes = lane.NoLanes
	r.currentEventPendingLanes = lane.NoLanes
}

func (r *Reconciler) checkForNestedUpdates() error {
	if r.nestedUpdateCount > r.nestedUpdateLimit {
		r.nestedUpdateCount = 0
		r.rootWithNestedUpdates = nil
		return errors.WithStack(ErrNestedUpdateLimit)
	}
	return nil
}

// markUpdateLaneFromFiberToRoot records l on f and on the child lanes of
// every ancestor. It returns nil when f is no longer mounted.
func markUpdateLaneFromFiberToRoot(f *Fiber, l lane.Lane) *Root {
	f.Lanes |= l
	if alt := f.Alternate; alt != nil {
		alt.Lanes |= l
	}
	node := f
	for parent := f.Return; parent != nil; parent = parent.Return {
		parent.ChildLanes |= l
		if alt := parent.Alternate; alt != nil {
			alt.ChildLanes |= l
		}
		node = parent
	}
	if node.Kind != KindHostRoot {
		return nil
	}
	root, _ := node.StateNode.(*Root)
	return root
}

func (r *Reconciler) scheduleUpdateOnFiber(f *Fiber, l lane.Lane, eventTime lane.Timestamp) error {
	if err := r.checkForNestedUpdates(); err != nil {
		return err
	}
	root := markUpdateLaneFromFiberToRoot(f, l)
	if root == nil {
		r.log.WithField("kind", f.Kind).Warn("update scheduled on an unmounted fiber")
		return nil
	}

	lane.MarkRootUpdated(&root.RootLanes, l, eventTime)

	if root == r.wipRoot {
		if r.executionContext&renderContext == 0 {
			r.wipRootUpdatedLanes |= l
		}
		if r.wipRootExitStatus == RootSuspendedWithDelay {
			// The render in progress will not commit; let the new update
			// go first.
			lane.MarkRootSuspended(&root.RootLanes, r.wipRootRenderLanes)
		}
	}

	var err error
	if l == lane.SyncLane {
		if r.executionContext&legacyUnbatchedContext != 0 && r.executionContext&(renderContext|commitContext) == 0 {
			err = r.performSyncWorkOnRoot(root)
		} else {
			r.ensureRootIsScheduled(root, eventTime)
			if r.executionContext == noContext {
				err = r.flushSyncCallbackQueue()
			}
		}
	} else {
		if r.executionContext&discreteEventContext != 0 {
			switch r.sched.CurrentPriority() {
			case scheduler.UserBlockingPriority, scheduler.ImmediatePriority:
				r.rootsWithPendingDiscreteUpdates.Add(root)
			}
		}
		r.ensureRootIsScheduled(root, eventTime)
	}
	r.mostRecentlyUpdatedRoot = root
	return err
}

// cancelRootCallback drops the root's scheduled task. A queued sync
// callback cannot be removed, so it is invalidated instead.
func (r *Reconciler) cancelRootCallback(root *Root) {
	if root.callbackNode != nil {
		r.sched.CancelCallback(root.callbackNode)
		root.callbackNode = nil
	}
	root.syncGen++
	root.callbackPriority = lane.NoPriority
}

// ensureRootIsScheduled makes sure the root has exactly one task, at the
// priority of its most urgent pending lanes.
func (r *Reconciler) ensureRootIsScheduled(root *Root, currentTime lane.Timestamp) {
	lane.MarkStarvedLanesAsExpired(&root.RootLanes, currentTime)

	wipLanes := lane.NoLanes
	if root == r.wipRoot {
		wipLanes = r.wipRootRenderLanes
	}
	next, priority := lane.GetNextLanes(&root.RootLanes, wipLanes)
	if next == lane.NoLanes {
		r.cancelRootCallback(root)
		return
	}
	if root.callbackPriority != lane.NoPriority {
		if root.callbackPriority == priority {
			return
		}
		r.cancelRootCallback(root)
	}

	r.log.WithFields(logrus.Fields{
		"lanes":    next,
		"priority": priority,
		"root":     root.tag,
	}).Debug("scheduling root")

	if priority == lane.SyncPriority {
		gen := root.syncGen
		r.sched.ScheduleSyncCallback(func() error {
			if root.syncGen != gen {
				return nil
			}
			root.callbackPriority = lane.NoPriority
			err := r.performSyncWorkOnRoot(root)
			if err != nil && r.inSyncFlush == 0 {
				r.reportError(root, err)
				return nil
			}
			return err
		})
		root.callbackNode = nil
	} else {
		root.callbackNode = r.sched.ScheduleCallback(lanePriorityToSchedulerPriority(priority), r.concurrentWork(root))
	}
	root.callbackPriority = priority
}

// concurrentWork is the task that renders root concurrently. It returns
// itself as a continuation while the render yields.
func (r *Reconciler) concurrentWork(root *Root) scheduler.Callback {
	var cb scheduler.Callback
	cb = func(didTimeout bool) scheduler.Callback {
		if r.performConcurrentWorkOnRoot(root, didTimeout) {
			return cb
		}
		return nil
	}
	return cb
}

// performConcurrentWorkOnRoot runs one slice of concurrent work and
// reports whether the same task should continue.
func (r *Reconciler) performConcurrentWorkOnRoot(root *Root, didTimeout bool) bool {
	r.resetEvent()
	if r.executionContext&(renderContext|commitContext) != 0 {
		r.reportError(root, errors.WithStack(ErrAlreadyWorking))
		return false
	}

	original := root.callbackNode
	didFlush, err := r.FlushPassiveEffects()
	if err != nil {
		r.reportError(root, err)
	}
	if didFlush && root.callbackNode != original {
		// A passive effect rescheduled this root.
		return false
	}

	wipLanes := lane.NoLanes
	if root == r.wipRoot {
		wipLanes = r.wipRootRenderLanes
	}
	lanes, _ := lane.GetNextLanes(&root.RootLanes, wipLanes)
	if lanes == lane.NoLanes {
		r.cancelRootCallback(root)
		return false
	}

	if didTimeout {
		// The task starved. Render the lanes synchronously.
		lane.MarkRootExpired(&root.RootLanes, lanes)
		r.ensureRootIsScheduled(root, r.sched.Now())
		return false
	}

	status := r.renderRootConcurrent(root, lanes)
	if lane.IncludesSomeLane(r.wipRootIncludedLanes, r.wipRootUpdatedLanes) {
		// The render included lanes that were updated while it yielded.
		// Start over so it sees them.
		r.prepareFreshStack(root, lane.NoLanes)
	} else if status != RootIncomplete {
		if status == RootErrored {
			status, lanes = r.retryAfterError(root, lanes)
		}
		if status == RootFatalErrored {
			r.reportError(root, r.fatal(root, lanes))
			return false
		}
		root.finishedWork = root.current.Alternate
		root.finishedLanes = lanes
		if err := r.finishConcurrentRender(root, status, lanes); err != nil {
			r.reportError(root, err)
		}
	}

	r.ensureRootIsScheduled(root, r.sched.Now())
	return root.callbackNode == original && original != nil
}

// retryAfterError renders once more synchronously, including every
// pending lane, in case the error came from a transient inconsistency.
func (r *Reconciler) retryAfterError(root *Root, lanes lane.Lanes) (ExitStatus, lane.Lanes) {
	prev := r.executionContext
	r.executionContext |= retryAfterErrorContext
	defer func() { r.executionContext = prev }()

	retryLanes := lane.GetLanesToRetrySynchronouslyOnError(&root.RootLanes)
	if retryLanes == lane.NoLanes {
		return RootErrored, lanes
	}
	r.log.WithField("lanes", retryLanes).Debug("retrying render after error")
	return r.renderRootSync(root, retryLanes), retryLanes
}

// fatal abandons the render and parks its lanes until another update
// arrives.
func (r *Reconciler) fatal(root *Root, lanes lane.Lanes) error {
	err := r.wipRootFatalError
	r.resetStacks()
	r.wipRoot = nil
	r.wip = nil
	r.wipRootRenderLanes = lane.NoLanes
	root.finishedWork = nil
	root.finishedLanes = lane.NoLanes
	lane.MarkRootSuspended(&root.RootLanes, lanes)
	r.ensureRootIsScheduled(root, r.sched.Now())
	return err
}

func (r *Reconciler) finishConcurrentRender(root *Root, status ExitStatus, lanes lane.Lanes) error {
	switch status {
	case RootErrored, RootCompleted:
		return r.commitRoot(root)
	case RootSuspended:
		lane.MarkRootSuspended(&root.RootLanes, lanes)
		return r.commitRoot(root)
	case RootSuspendedWithDelay:
		lane.MarkRootSuspended(&root.RootLanes, lanes)
		if lane.IncludesOnlyTransitions(lanes) {
			// Keep showing the current content until a ping.
			root.finishedWork = nil
			root.finishedLanes = lane.NoLanes
			return nil
		}
		return r.commitRoot(root)
	}
	return errors.Wrapf(ErrIncompleteRoot, "unexpected exit status %s", status)
}

func (r *Reconciler) performSyncWorkOnRoot(root *Root) error {
	if r.executionContext&(renderContext|commitContext) != 0 {
		return errors.WithStack(ErrAlreadyWorking)
	}
	var errs error
	if _, err := r.FlushPassiveEffects(); err != nil {
		errs = appendError(errs, err)
	}

	var (
		lanes  lane.Lanes
		status ExitStatus
	)
	if root == r.wipRoot && lane.IncludesSomeLane(root.Expired, r.wipRootRenderLanes) {
		// Finish the expired render in progress without yielding.
		lanes = r.wipRootRenderLanes
		status = r.renderRootSync(root, lanes)
		if lane.IncludesSomeLane(r.wipRootIncludedLanes, r.wipRootUpdatedLanes) {
			lanes, _ = lane.GetNextLanes(&root.RootLanes, lanes)
			status = r.renderRootSync(root, lanes)
		}
	} else {
		var priority lane.Priority
		lanes, priority = lane.GetNextLanes(&root.RootLanes, lane.NoLanes)
		if lanes == lane.NoLanes || priority != lane.SyncPriority {
			r.ensureRootIsScheduled(root, r.sched.Now())
			return errs
		}
		status = r.renderRootSync(root, lanes)
	}

	if status == RootErrored {
		status, lanes = r.retryAfterError(root, lanes)
	}
	if status == RootFatalErrored {
		return appendError(errs, r.fatal(root, lanes))
	}

	root.finishedWork = root.current.Alternate
	root.finishedLanes = lanes
	errs = appendError(errs, r.commitRoot(root))
	r.ensureRootIsScheduled(root, r.sched.Now())
	return errs
}

// prepareFreshStack throws away any render in progress and starts a new
// work-in-progress tree for lanes.
func (r *Reconciler) prepareFreshStack(root *Root, lanes lane.Lanes) {
	root.finishedWork = nil
	root.finishedLanes = lane.NoLanes

	if r.wip != nil {
		for f := r.wip.Return; f != nil; f = f.Return {
			r.unwindInterruptedWork(f)
		}
		r.log.WithField("lanes", r.wipRootRenderLanes).Debug("discarding render in progress")
	}
	r.resetStacks()

	r.wipRoot = root
	r.wip = createWorkInProgress(root.current, nil)
	r.wipRootRenderLanes = lanes
	r.subtreeRenderLanes = lanes
	r.wipRootIncludedLanes = lanes
	r.wipRootExitStatus = RootIncomplete
	r.wipRootFatalError = nil
	r.wipRootSkippedLanes = lane.NoLanes
	r.wipRootUpdatedLanes = lane.NoLanes
	r.wipRootPingedLanes = lane.NoLanes
}

func (r *Reconciler) renderRootSync(root *Root, lanes lane.Lanes) ExitStatus {
	prev := r.executionContext
	r.executionContext |= renderContext
	defer func() { r.executionContext = prev }()

	if r.wipRoot != root || r.wipRootRenderLanes != lanes {
		r.prepareFreshStack(root, lanes)
	}
	for r.wip != nil {
		if err := r.performUnitOfWork(r.wip); err != nil {
			r.handleError(root, err)
		}
	}

	r.wipRoot = nil
	r.wipRootRenderLanes = lane.NoLanes
	return r.wipRootExitStatus
}

func (r *Reconciler) renderRootConcurrent(root *Root, lanes lane.Lanes) ExitStatus {
	prev := r.executionContext
	r.executionContext |= renderContext
	defer func() { r.executionContext = prev }()

	if r.wipRoot != root || r.wipRootRenderLanes != lanes {
		r.prepareFreshStack(root, lanes)
	}
	for r.wip != nil && !r.sched.ShouldYield() {
		if err := r.performUnitOfWork(r.wip); err != nil {
			r.handleError(root, err)
		}
	}
	if r.wip != nil {
		return RootIncomplete
	}

	r.wipRoot = nil
	r.wipRootRenderLanes = lane.NoLanes
	return r.wipRootExitStatus
}

// performUnitOfWork begins unit and, when it has no child to descend
// into, completes it. Panics in component code come back as errors.
func (r *Reconciler) performUnitOfWork(unit *Fiber) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
	}()

	next, err := r.beginWork(unit.Alternate, unit, r.subtreeRenderLanes)
	r.currentlyRenderingFiber = nil
	if err != nil {
		return err
	}
	unit.MemoizedProps = unit.PendingProps
	if next == nil {
		return r.completeUnitOfWork(unit)
	}
	r.wip = next
	return nil
}

// completeUnitOfWork completes unit and its ancestors until it finds a
// sibling to begin, splicing every effect list into its parent's.
func (r *Reconciler) completeUnitOfWork(unit *Fiber) error {
	completed := unit
	for completed != nil {
		r.wip = completed
		current := completed.Alternate
		parent := completed.Return

		if completed.Flags&Incomplete == 0 {
			next, err := r.completeWork(current, completed, r.subtreeRenderLanes)
			if err != nil {
				return err
			}
			if next != nil {
				r.wip = next
				return nil
			}
			r.resetChildLanes(completed)

			if parent != nil && parent.Flags&Incomplete == 0 {
				if parent.FirstEffect == nil {
					parent.FirstEffect = completed.FirstEffect
				}
				if completed.LastEffect != nil {
					if parent.LastEffect != nil {
						parent.LastEffect.NextEffect = completed.FirstEffect
					}
					parent.LastEffect = completed.LastEffect
				}
				// PerformedWork alone is not a side effect.
				if completed.Flags > PerformedWork {
					if parent.LastEffect != nil {
						parent.LastEffect.NextEffect = completed
					} else {
						parent.FirstEffect = completed
					}
					parent.LastEffect = completed
				}
			}
		} else {
			// completed threw. Unwind until a boundary captures.
			if next := r.unwindWork(completed); next != nil {
				next.Flags &= HostEffectMask
				r.wip = next
				return nil
			}
			if parent != nil {
				parent.FirstEffect = nil
				parent.LastEffect = nil
				parent.Flags |= Incomplete
			}
		}

		if sibling := completed.Sibling; sibling != nil {
			r.wip = sibling
			return nil
		}
		completed = parent
	}

	r.wip = nil
	if r.wipRootExitStatus == RootIncomplete {
		r.wipRootExitStatus = RootCompleted
	}
	return nil
}

func (r *Reconciler) resetChildLanes(completed *Fiber) {
	if completed.Kind == KindOffscreen && completed.MemoizedState != nil &&
		!lane.IncludesSomeLane(r.subtreeRenderLanes, lane.OffscreenLane) {
		// Work below a hidden subtree does not bubble up; it is resumed
		// through the offscreen lane.
		return
	}
	var childLanes lane.Lanes
	for child := completed.Child; child != nil; child = child.Sibling {
		childLanes |= child.Lanes | child.ChildLanes
	}
	completed.ChildLanes = childLanes
}

// handleError routes err, raised while working on r.wip, to the nearest
// boundary. Without one the render is fatal.
func (r *Reconciler) handleError(root *Root, err error) {
	for {
		r.currentlyRenderingFiber = nil
		r.renderingHooks = nil

		erroredWork := r.wip
		captured := false
		if erroredWork != nil && erroredWork.Return != nil && !isContractError(err) {
			captured, err = r.throwException(root, erroredWork.Return, erroredWork, err, r.wipRootRenderLanes)
		}
		if !captured {
			r.wipRootExitStatus = RootFatalErrored
			r.wipRootFatalError = err
			r.wip = nil
			return
		}
		err = callSafely(func() error { return r.completeUnitOfWork(erroredWork) })
		if err == nil {
			return
		}
	}
}

func (r *Reconciler) markSkippedUpdateLanes(lanes lane.Lanes) {
	r.wipRootSkippedLanes |= lanes
}

func (r *Reconciler) renderDidSuspend() {
	if r.wipRootExitStatus == RootIncomplete {
		r.wipRootExitStatus = RootSuspended
	}
}

func (r *Reconciler) renderDidSuspendDelayIfPossible() {
	if r.wipRootExitStatus == RootIncomplete || r.wipRootExitStatus == RootSuspended {
		r.wipRootExitStatus = RootSuspendedWithDelay
	}
	if r.wipRoot != nil && (lane.IncludesNonIdleWork(r.wipRootSkippedLanes) || lane.IncludesNonIdleWork(r.wipRootUpdatedLanes)) {
		// Other work is waiting; do not hold it up behind this render.
		lane.MarkRootSuspended(&r.wipRoot.RootLanes, r.wipRootRenderLanes)
	}
}

func (r *Reconciler) renderDidError() {
	if r.wipRootExitStatus != RootCompleted {
		r.wipRootExitStatus = RootErrored
	}
}
