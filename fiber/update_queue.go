package fiber

import (
	"maps"

	"github.com/delaneyj/fiberparty/lane"
)

type UpdateTag uint8

const (
	UpdateState UpdateTag = iota
	ReplaceState
	ForceUpdate
	CaptureUpdate
)

// StateUpdater computes the next state from the previous one. Returning
// nil from an UpdateState payload leaves the state unchanged.
type StateUpdater func(prev State, props Props) (State, error)

// StateUpdate is a pending state transition. It is never mutated once it has
// been enqueued; rebasing works on clones.
type StateUpdate struct {
	Lane      lane.Lane
	EventTime lane.Timestamp
	Tag       UpdateTag
	Payload   any
	Callback  func() error
}

func createUpdate(eventTime lane.Timestamp, l lane.Lane) *StateUpdate {
	return &StateUpdate{Lane: l, EventTime: eventTime, Tag: UpdateState}
}

// sharedQueue is shared by both buffers of a fiber so updates enqueued
// while a render is in flight are seen by whichever tree commits.
type sharedQueue struct {
	pending []*StateUpdate
}

// detach hands over every pending update in enqueue order and leaves the
// queue empty.
func (q *sharedQueue) detach() []*StateUpdate {
	pending := q.pending
	q.pending = nil
	return pending
}

type UpdateQueue struct {
	baseState   State
	baseUpdates []*StateUpdate
	shared      *sharedQueue
	// effects are applied updates whose callbacks run in the layout pass.
	effects []*StateUpdate
}

func initializeUpdateQueue(f *Fiber) {
	f.updateQueue = &UpdateQueue{
		baseState: f.MemoizedState,
		shared:    &sharedQueue{},
	}
}

// cloneUpdateQueue gives wip its own queue object so processing it does
// not disturb the committed one.
func cloneUpdateQueue(current, wip *Fiber) {
	if wip.updateQueue != current.updateQueue {
		return
	}
	cq := current.updateQueue
	wip.updateQueue = &UpdateQueue{
		baseState:   cq.baseState,
		baseUpdates: cq.baseUpdates,
		shared:      cq.shared,
		effects:     cq.effects,
	}
}

// enqueueUpdate appends u to f's pending updates. It is a no-op for a
// fiber that has been unmounted.
func enqueueUpdate(f *Fiber, u *StateUpdate) {
	q := f.updateQueue
	if q == nil {
		return
	}
	q.shared.pending = append(q.shared.pending, u)
}

// enqueueCapturedUpdate puts u on the work-in-progress base list only, so
// it is discarded if this render is thrown away.
func enqueueCapturedUpdate(wip *Fiber, u *StateUpdate) {
	if current := wip.Alternate; current != nil {
		cloneUpdateQueue(current, wip)
	}
	q := wip.updateQueue
	q.baseUpdates = appendUpdates(q.baseUpdates, []*StateUpdate{u})
}

// appendUpdates never writes into a backing array another queue may share.
func appendUpdates(base, more []*StateUpdate) []*StateUpdate {
	return append(base[:len(base):len(base)], more...)
}

// processUpdateQueue applies every update included in renderLanes to the
// queue's base state. Skipped updates are kept, together with every update
// after them, so they can be rebased on a later render.
func (r *Reconciler) processUpdateQueue(wip *Fiber, props Props, instance Instance, renderLanes lane.Lanes) error {
	q := wip.updateQueue
	r.hasForceUpdate = false

	if pending := q.shared.detach(); len(pending) > 0 {
		q.baseUpdates = appendUpdates(q.baseUpdates, pending)

		// Keep the committed buffer's base list in step so an interrupted
		// render cannot lose these updates.
		if current := wip.Alternate; current != nil {
			if cq := current.updateQueue; cq != nil && cq != q {
				cq.baseUpdates = appendUpdates(cq.baseUpdates, pending)
			}
		}
	}

	base := q.baseUpdates
	if len(base) == 0 {
		return nil
	}

	var (
		newState     = q.baseState
		newBaseState State
		newBase      []*StateUpdate
		newLanes     lane.Lanes
	)
	for i := 0; ; i++ {
		if i == len(base) {
			// Updates enqueued while processing, e.g. from a payload.
			more := q.shared.detach()
			if len(more) == 0 {
				break
			}
			base = appendUpdates(base, more)
			q.baseUpdates = base
		}

		u := base[i]
		if !lane.IsSubsetOfLanes(renderLanes, u.Lane) {
			// Insufficient priority. The first skipped update fixes the
			// base state for the rebase.
			clone := *u
			if len(newBase) == 0 {
				newBaseState = newState
			}
			newBase = append(newBase, &clone)
			newLanes |= u.Lane
			continue
		}

		if len(newBase) > 0 {
			// Everything after a skipped update is replayed on rebase; NoLane
			// makes sure the replay never skips it. Its callback already ran.
			clone := *u
			clone.Lane = lane.NoLane
			clone.Callback = nil
			newBase = append(newBase, &clone)
		}

		s, err := r.getStateFromUpdate(wip, u, newState, props, instance)
		if err != nil {
			return err
		}
		newState = s

		if u.Callback != nil {
			wip.Flags |= Callback
			q.effects = append(q.effects, u)
		}
	}

	if len(newBase) == 0 {
		newBaseState = newState
	}
	q.baseState = newBaseState
	q.baseUpdates = newBase

	r.markSkippedUpdateLanes(newLanes)
	wip.Lanes = newLanes
	wip.MemoizedState = newState
	return nil
}

func asStateUpdater(payload any) (StateUpdater, bool) {
	switch fn := payload.(type) {
	case StateUpdater:
		return fn, true
	case func(State, Props) (State, error):
		return fn, true
	case func(State) State:
		return func(prev State, _ Props) (State, error) { return fn(prev), nil }, true
	}
	return nil, false
}

func (r *Reconciler) getStateFromUpdate(wip *Fiber, u *StateUpdate, prev State, props Props, instance Instance) (State, error) {
	switch u.Tag {
	case ReplaceState:
		if fn, ok := asStateUpdater(u.Payload); ok {
			return fn(prev, props)
		}
		return u.Payload, nil

	case CaptureUpdate:
		wip.Flags = wip.Flags&^ShouldCapture | DidCapture
		fallthrough

	case UpdateState:
		partial := u.Payload
		if fn, ok := asStateUpdater(partial); ok {
			next, err := fn(prev, props)
			if err != nil {
				return nil, err
			}
			partial = next
		}
		if partial == nil {
			return prev, nil
		}
		return mergeState(prev, partial), nil

	case ForceUpdate:
		r.hasForceUpdate = true
	}
	return prev, nil
}

// mergeState shallow-merges map states and replaces anything else.
func mergeState(prev, partial State) State {
	pm, ok := partial.(map[string]any)
	if !ok {
		return partial
	}
	prevMap, _ := prev.(map[string]any)
	merged := make(map[string]any, len(prevMap)+len(pm))
	maps.Copy(merged, prevMap)
	maps.Copy(merged, pm)
	return merged
}

// commitUpdateQueue runs the callbacks of applied updates. Every callback
// runs even if an earlier one fails.
func commitUpdateQueue(q *UpdateQueue) error {
	effects := q.effects
	q.effects = nil
	var errs error
	for _, u := range effects {
		if u.Callback == nil {
			continue
		}
		cb := u.Callback
		u.Callback = nil
		if err := callSafely(cb); err != nil {
			errs = appendError(errs, err)
		}
	}
	return errs
}
