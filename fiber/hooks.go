package fiber

import (
	"github.com/delaneyj/fiberparty/lane"
	"github.com/pkg/errors"
)

type hookEffectTag uint8

const (
	// hookHasEffect marks effects whose deps changed in this render.
	hookHasEffect hookEffectTag = 1 << iota
	hookLayout
	hookPassive
)

// EffectFunc runs after a commit and returns the cleanup to run before
// the next run or on unmount. cleanup may be nil.
type EffectFunc func() (cleanup func() error, err error)

type hookEffect struct {
	tag     hookEffectTag
	create  EffectFunc
	destroy func() error
	deps    []any
}

type hookKind uint8

const (
	hookReducer hookKind = iota
	hookEffectKind
	hookRef
	hookMemo
)

type hook struct {
	kind      hookKind
	state     any
	baseState any
	baseQueue []*hookUpdate
	queue     *hookQueue
}

type hookUpdate struct {
	lane          lane.Lane
	action        any
	hasEagerState bool
	eagerState    any
}

type hookQueue struct {
	pending           []*hookUpdate
	dispatch          func(action any)
	basic             bool
	lastRenderedState any
}

type memoState struct {
	value any
	deps  []any
}

// Hooks gives a function component state and effects. Hooks are matched
// to the previous render by call order, so every render must make the
// same calls in the same order. A Hooks value is only valid during the
// render it was passed to.
type Hooks struct {
	r           *Reconciler
	fiber       *Fiber
	renderLanes lane.Lanes

	hooks        []*hook
	currentHooks []*hook
	index        int

	rerendering                  bool
	didScheduleRenderPhaseUpdate bool
	done                         bool
}

func (r *Reconciler) renderWithHooks(current, wip *Fiber, render RenderFunc, props Props, renderLanes lane.Lanes) (any, error) {
	h := &Hooks{r: r, fiber: wip, renderLanes: renderLanes}
	if current != nil {
		h.currentHooks, _ = current.MemoizedState.([]*hook)
	}
	wip.MemoizedState = nil
	wip.hookEffects = nil
	wip.Lanes = lane.NoLanes

	r.currentlyRenderingFiber = wip
	r.renderingHooks = h
	defer func() {
		h.done = true
		r.renderingHooks = nil
		r.currentlyRenderingFiber = nil
	}()

	children, err := render(h, props)
	for n := 0; err == nil && h.didScheduleRenderPhaseUpdate; n++ {
		if n >= r.reRenderLimit {
			return nil, errors.WithStack(ErrTooManyReRenders)
		}
		h.didScheduleRenderPhaseUpdate = false
		h.rerendering = true
		h.index = 0
		wip.hookEffects = nil
		children, err = render(h, props)
	}
	if err != nil {
		return nil, err
	}
	if h.index < len(h.currentHooks) {
		return nil, errors.Wrap(ErrHookOrder, "rendered fewer hooks than during the previous render")
	}
	wip.MemoizedState = h.hooks
	return children, nil
}

// nextHook returns the work-in-progress hook for the next call together
// with its committed counterpart, which is nil on mount. A hook of another
// kind in this slot means the calls were reordered.
func (h *Hooks) nextHook(kind hookKind) (hk, cur *hook) {
	if h.done {
		panic(errors.WithStack(ErrInvalidHookCall))
	}
	i := h.index
	h.index++
	if i < len(h.currentHooks) {
		cur = h.currentHooks[i]
		if cur.kind != kind {
			panic(errors.Wrapf(ErrHookOrder, "hook %d changed kind between renders", i))
		}
	} else if len(h.currentHooks) > 0 {
		panic(errors.Wrap(ErrHookOrder, "rendered more hooks than during the previous render"))
	}
	if h.rerendering && i < len(h.hooks) {
		if h.hooks[i].kind != kind {
			panic(errors.Wrapf(ErrHookOrder, "hook %d changed kind between renders", i))
		}
		return h.hooks[i], cur
	}
	if cur != nil {
		clone := *cur
		hk = &clone
	} else {
		hk = &hook{kind: kind}
	}
	h.hooks = append(h.hooks, hk)
	return hk, cur
}

func basicStateReducer(state, action any) any {
	if fn, ok := action.(func(any) any); ok {
		return fn(state)
	}
	return action
}

// UseState returns the current state and a setter. The setter takes
// either the next state or a func(prev any) any. initial may be a
// func() any that is called on mount only.
func (h *Hooks) UseState(initial any) (any, func(action any)) {
	if fn, ok := initial.(func() any); ok {
		if h.mountingNext() {
			initial = fn()
		}
	}
	return h.useReducer(basicStateReducer, initial, true)
}

func (h *Hooks) UseReducer(reducer func(state, action any) any, initial any) (any, func(action any)) {
	return h.useReducer(reducer, initial, false)
}

// mountingNext reports whether the next hook call mounts a new hook.
func (h *Hooks) mountingNext() bool {
	if h.rerendering && h.index < len(h.hooks) {
		return false
	}
	return h.index >= len(h.currentHooks)
}

func (h *Hooks) useReducer(reducer func(state, action any) any, initial any, basic bool) (any, func(action any)) {
	hk, cur := h.nextHook(hookReducer)
	if hk.queue == nil {
		hk.state = initial
		hk.baseState = initial
		q := &hookQueue{basic: basic, lastRenderedState: initial}
		r, f := h.r, h.fiber
		q.dispatch = func(action any) {
			r.dispatchAction(f, q, action)
		}
		hk.queue = q
		return initial, q.dispatch
	}
	return h.updateReducer(hk, cur, reducer)
}

func appendHookUpdates(base, more []*hookUpdate) []*hookUpdate {
	return append(base[:len(base):len(base)], more...)
}

func (h *Hooks) updateReducer(hk, cur *hook, reducer func(state, action any) any) (any, func(action any)) {
	q := hk.queue
	if pending := q.pending; len(pending) > 0 {
		q.pending = nil
		hk.baseQueue = appendHookUpdates(hk.baseQueue, pending)
		if cur != nil && !h.rerendering {
			// Keep them on the committed hook in case this render is
			// thrown away.
			cur.baseQueue = hk.baseQueue
		}
	}
	if len(hk.baseQueue) == 0 {
		return hk.state, q.dispatch
	}

	var (
		newState     = hk.baseState
		newBaseState any
		newBase      []*hookUpdate
	)
	for _, u := range hk.baseQueue {
		if !lane.IsSubsetOfLanes(h.renderLanes, u.lane) {
			clone := *u
			if len(newBase) == 0 {
				newBaseState = newState
			}
			newBase = append(newBase, &clone)
			h.fiber.Lanes |= u.lane
			h.r.markSkippedUpdateLanes(u.lane)
			continue
		}
		if len(newBase) > 0 {
			clone := *u
			clone.lane = lane.NoLane
			newBase = append(newBase, &clone)
		}
		if u.hasEagerState && q.basic {
			newState = u.eagerState
		} else {
			newState = reducer(newState, u.action)
		}
	}
	if len(newBase) == 0 {
		newBaseState = newState
	}

	if !sameValue(newState, hk.state) {
		h.r.didReceiveUpdate = true
	}
	hk.state = newState
	hk.baseState = newBaseState
	hk.baseQueue = newBase
	q.lastRenderedState = newState
	return hk.state, q.dispatch
}

func (r *Reconciler) dispatchAction(f *Fiber, q *hookQueue, action any) {
	eventTime := r.requestEventTime()
	l := r.requestUpdateLane(f)
	u := &hookUpdate{lane: l, action: action}
	q.pending = append(q.pending, u)

	alt := f.Alternate
	if rendering := r.currentlyRenderingFiber; rendering != nil && (f == rendering || alt == rendering) {
		// Render phase update: the component renders again right away.
		if h := r.renderingHooks; h != nil {
			h.didScheduleRenderPhaseUpdate = true
		}
		return
	}

	if q.basic && f.Lanes == lane.NoLanes && (alt == nil || alt.Lanes == lane.NoLanes) {
		// The queue is empty, so the next state can be computed now. If it
		// is unchanged there is nothing to schedule.
		eager := basicStateReducer(q.lastRenderedState, action)
		u.hasEagerState = true
		u.eagerState = eager
		if sameValue(eager, q.lastRenderedState) {
			return
		}
	}
	if err := r.scheduleUpdateOnFiber(f, l, eventTime); err != nil {
		r.reportError(nil, err)
	}
}

// UseEffect schedules create to run after the commit, in the passive
// pass. A nil deps runs it after every commit; an empty deps only after
// the first.
func (h *Hooks) UseEffect(create EffectFunc, deps []any) {
	h.effect(Update|Passive, hookPassive, create, deps)
}

// UseLayoutEffect runs create in the layout pass, before the commit
// returns.
func (h *Hooks) UseLayoutEffect(create EffectFunc, deps []any) {
	h.effect(Update, hookLayout, create, deps)
}

func (h *Hooks) effect(fiberFlags Flags, tag hookEffectTag, create EffectFunc, deps []any) {
	hk, cur := h.nextHook(hookEffectKind)
	var destroy func() error
	if cur != nil {
		prev := cur.state.(*hookEffect)
		destroy = prev.destroy
		if deps != nil && depsEqual(deps, prev.deps) {
			hk.state = h.pushEffect(tag, create, destroy, deps)
			return
		}
	}
	h.fiber.Flags |= fiberFlags
	hk.state = h.pushEffect(hookHasEffect|tag, create, destroy, deps)
}

func (h *Hooks) pushEffect(tag hookEffectTag, create EffectFunc, destroy func() error, deps []any) *hookEffect {
	e := &hookEffect{tag: tag, create: create, destroy: destroy, deps: deps}
	h.fiber.hookEffects = append(h.fiber.hookEffects, e)
	return e
}

// UseRef returns the same *RefObject on every render.
func (h *Hooks) UseRef(initial any) *RefObject {
	hk, _ := h.nextHook(hookRef)
	if hk.state == nil {
		hk.state = &RefObject{Current: initial}
	}
	return hk.state.(*RefObject)
}

// UseMemo returns the cached result of compute until deps change.
func (h *Hooks) UseMemo(compute func() any, deps []any) any {
	hk, _ := h.nextHook(hookMemo)
	if st, ok := hk.state.(*memoState); ok && deps != nil && depsEqual(deps, st.deps) {
		return st.value
	}
	v := compute()
	hk.state = &memoState{value: v, deps: deps}
	return v
}

// UseContext returns the current value of ctx and re-renders the
// component whenever a provider above it changes that value.
func (h *Hooks) UseContext(ctx *Context) any {
	if h.done {
		panic(errors.WithStack(ErrInvalidHookCall))
	}
	return h.r.readContext(ctx)
}

func bailoutHooks(current, wip *Fiber, renderLanes lane.Lanes) {
	wip.hookEffects = current.hookEffects
	wip.Flags &^= Passive | Update
	current.Lanes = lane.RemoveLanes(current.Lanes, renderLanes)
}
