package fiber

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/pkg/errors"
)

// throwException marks source as incomplete and looks for the boundary
// above it that captures value. When nothing does it reports false along
// with the error the render fails with.
func (r *Reconciler) throwException(root *Root, returnFiber, source *Fiber, value error, renderLanes lane.Lanes) (bool, error) {
	source.Flags |= Incomplete
	source.FirstEffect = nil
	source.LastEffect = nil

	if w, ok := asSuspense(value); ok {
		for f := returnFiber; f != nil; f = f.Return {
			if f.Kind != KindSuspense || !shouldCaptureSuspense(f) {
				continue
			}
			if f.wakeables == nil {
				f.wakeables = mapset.NewThreadUnsafeSet[Wakeable]()
			}
			f.wakeables.Add(w)
			r.attachPingListener(root, w, renderLanes)
			f.Flags |= ShouldCapture
			f.Lanes = renderLanes
			return true, nil
		}
		value = errors.Wrapf(ErrNoSuspenseBoundary, "%s suspended", source.Kind)
	}

	r.renderDidError()
	for f := returnFiber; f != nil; f = f.Return {
		if f.Kind != KindClass || f.Flags&DidCapture != 0 || !isErrorBoundary(f) {
			// A boundary failing to render its captured state passes the
			// error up.
			continue
		}
		if inst, ok := f.StateNode.(Instance); ok && r.failedBoundaries.Contains(inst) {
			continue
		}
		f.Flags |= ShouldCapture
		l := lane.PickArbitraryLane(renderLanes)
		f.Lanes |= l
		enqueueCapturedUpdate(f, r.createClassErrorUpdate(f, value, l))
		return true, nil
	}
	return false, value
}

// shouldCaptureSuspense reports whether boundary f can show its fallback.
// A boundary already showing it passes the suspension up.
func shouldCaptureSuspense(f *Fiber) bool {
	if f.MemoizedState != nil {
		return false
	}
	_, ok := f.MemoizedProps[fallbackProp]
	return ok
}

// settled wraps a wakeable callback so it never runs in the middle of a
// render or commit; it is deferred to a task instead.
func (r *Reconciler) settled(fn func()) func() {
	return func() {
		if r.executionContext&(renderContext|commitContext) != 0 {
			r.sched.ScheduleCallback(scheduler.ImmediatePriority, func(bool) scheduler.Callback {
				fn()
				return nil
			})
			return
		}
		fn()
	}
}

// attachPingListener arranges for root to retry lanes once w settles.
// Each wakeable is listened to once per set of lanes.
func (r *Reconciler) attachPingListener(root *Root, w Wakeable, lanes lane.Lanes) {
	if root.pingCache == nil {
		root.pingCache = make(map[Wakeable]lane.Lanes)
	}
	existing, ok := root.pingCache[w]
	if ok && lane.IsSubsetOfLanes(existing, lanes) {
		return
	}
	root.pingCache[w] = existing | lanes
	w.Then(r.settled(func() {
		r.pingSuspendedRoot(root, w, lanes)
	}))
}

func (r *Reconciler) pingSuspendedRoot(root *Root, w Wakeable, pinged lane.Lanes) {
	delete(root.pingCache, w)

	eventTime := r.requestEventTime()
	lane.MarkRootPinged(&root.RootLanes, pinged)

	if root == r.wipRoot && lane.IsSubsetOfLanes(r.wipRootRenderLanes, pinged) {
		if r.wipRootExitStatus == RootSuspendedWithDelay ||
			(r.wipRootExitStatus == RootSuspended && lane.IncludesOnlyRetries(r.wipRootRenderLanes)) {
			// The render in progress will suspend anyway. Restart so it
			// sees the resolved data.
			r.prepareFreshStack(root, lane.NoLanes)
		} else {
			r.wipRootPingedLanes |= pinged
		}
	}
	r.ensureRootIsScheduled(root, eventTime)
}

// retryCache holds the wakeables a suspense boundary already listens to.
// It lives in the boundary's StateNode, shared by both buffers.
func retryCache(boundary *Fiber) mapset.Set[Wakeable] {
	cache, ok := boundary.StateNode.(mapset.Set[Wakeable])
	if !ok {
		cache = mapset.NewThreadUnsafeSet[Wakeable]()
		boundary.StateNode = cache
		if alt := boundary.Alternate; alt != nil {
			alt.StateNode = cache
		}
	}
	return cache
}

// attachRetryListeners makes the boundary retry its content at a retry
// lane once each wakeable it captured settles.
func (r *Reconciler) attachRetryListeners(boundary *Fiber) {
	wakeables := boundary.wakeables
	if wakeables == nil {
		return
	}
	boundary.wakeables = nil
	if alt := boundary.Alternate; alt != nil {
		alt.wakeables = nil
	}
	cache := retryCache(boundary)
	wakeables.Each(func(w Wakeable) bool {
		if cache.Add(w) {
			w.Then(r.settled(func() {
				r.resolveRetryWakeable(boundary, w)
			}))
		}
		return false
	})
}

func (r *Reconciler) resolveRetryWakeable(boundary *Fiber, w Wakeable) {
	retryCache(boundary).Remove(w)
	r.retryTimedOutBoundary(boundary)
}

func (r *Reconciler) retryTimedOutBoundary(boundary *Fiber) {
	retryLane := r.requestRetryLane(boundary)
	eventTime := r.requestEventTime()
	root := markUpdateLaneFromFiberToRoot(boundary, retryLane)
	if root == nil {
		return
	}
	lane.MarkRootUpdated(&root.RootLanes, retryLane, eventTime)
	r.ensureRootIsScheduled(root, eventTime)
}

// unwindWork pops what wip pushed and, when wip is the boundary that
// captured, returns it to be rendered again in its captured state.
func (r *Reconciler) unwindWork(wip *Fiber) *Fiber {
	b := &kinds[wip.Kind]
	if b.pop != nil {
		b.pop(r, wip)
	}
	if b.captures && wip.Flags&ShouldCapture != 0 {
		wip.Flags = wip.Flags&^ShouldCapture | DidCapture
		return wip
	}
	return nil
}

// unwindInterruptedWork pops what f pushed when a render is abandoned.
func (r *Reconciler) unwindInterruptedWork(f *Fiber) {
	if pop := kinds[f.Kind].pop; pop != nil {
		pop(r, f)
	}
}
