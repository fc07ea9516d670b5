package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/pkg/errors"
)

// schedulePassiveFlush makes sure a normal priority task will run the
// passive effects of the commit in progress.
func (r *Reconciler) schedulePassiveFlush() {
	if r.rootDoesHavePassiveEffects {
		return
	}
	r.rootDoesHavePassiveEffects = true
	r.sched.ScheduleCallback(scheduler.NormalPriority, func(bool) scheduler.Callback {
		if _, err := r.FlushPassiveEffects(); err != nil {
			r.reportError(nil, err)
		}
		return nil
	})
}

func (r *Reconciler) enqueuePendingPassiveHookEffectMount(f *Fiber, e *hookEffect) {
	r.pendingPassiveMount = append(r.pendingPassiveMount, passiveEffect{fiber: f, effect: e})
	r.schedulePassiveFlush()
}

func (r *Reconciler) enqueuePendingPassiveHookEffectUnmount(f *Fiber, e *hookEffect) {
	r.pendingPassiveUnmount = append(r.pendingPassiveUnmount, passiveEffect{fiber: f, effect: e})
	r.schedulePassiveFlush()
}

// FlushPassiveEffects runs every pending passive effect now instead of
// waiting for its task. Effects may schedule work that commits more
// passive effects; those run too. It reports whether anything ran.
func (r *Reconciler) FlushPassiveEffects() (bool, error) {
	var (
		didFlush bool
		errs     error
	)
	for r.rootWithPendingPassiveEffects != nil {
		var (
			ran bool
			err error
		)
		r.sched.RunWithPriority(scheduler.NormalPriority, func() {
			ran, err = r.flushPassiveEffectsImpl()
		})
		didFlush = didFlush || ran
		errs = appendError(errs, err)
		if !ran {
			break
		}
	}
	return didFlush, errs
}

func (r *Reconciler) flushPassiveEffectsImpl() (bool, error) {
	root := r.rootWithPendingPassiveEffects
	if root == nil {
		return false, nil
	}
	if r.executionContext&(renderContext|commitContext) != 0 {
		return false, errors.Wrap(ErrAlreadyWorking, "cannot flush passive effects")
	}
	r.rootWithPendingPassiveEffects = nil
	r.pendingPassiveEffectsLanes = lane.NoLanes

	prev := r.executionContext
	r.executionContext |= commitContext

	var errs error
	// Every cleanup runs before any effect.
	unmounts := r.pendingPassiveUnmount
	r.pendingPassiveUnmount = nil
	for _, pe := range unmounts {
		destroy := pe.effect.destroy
		pe.effect.destroy = nil
		if destroy == nil {
			continue
		}
		if err := callSafely(destroy); err != nil {
			errs = appendError(errs, r.captureCommitPhaseError(pe.fiber, err))
		}
	}

	mounts := r.pendingPassiveMount
	r.pendingPassiveMount = nil
	for _, pe := range mounts {
		if err := runEffectCreate(pe.effect); err != nil {
			errs = appendError(errs, r.captureCommitPhaseError(pe.fiber, err))
		}
	}

	r.executionContext = prev

	// Errors reported while the effects ran, e.g. by updates they
	// scheduled.
	errs = appendError(errs, r.uncaughtErrors)
	r.uncaughtErrors = nil

	errs = appendError(errs, r.flushSyncCallbackQueue())
	return true, errs
}
