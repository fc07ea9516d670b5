package fiber

import (
	"fmt"
	"maps"

	"github.com/delaneyj/fiberparty/lane"
)

type stackEntry[T any] struct {
	prev  T
	fiber *Fiber
}

// valueStack holds a current value plus the values it shadows. Every push
// names the fiber that owns it and the matching pop must name the same
// fiber.
type valueStack[T any] struct {
	current T
	entries []stackEntry[T]
}

func (s *valueStack[T]) push(v T, f *Fiber) {
	s.entries = append(s.entries, stackEntry[T]{prev: s.current, fiber: f})
	s.current = v
}

func (s *valueStack[T]) pop(f *Fiber) {
	n := len(s.entries) - 1
	if n < 0 {
		panic(fmt.Sprintf("fiber: unexpected pop for %s", f.Kind))
	}
	e := s.entries[n]
	if e.fiber != f {
		panic(fmt.Sprintf("fiber: unexpected %s popped, expected %s", f.Kind, e.fiber.Kind))
	}
	s.current = e.prev
	s.entries[n] = stackEntry[T]{}
	s.entries = s.entries[:n]
}

func (s *valueStack[T]) reset(v T) {
	clear(s.entries)
	s.entries = s.entries[:0]
	s.current = v
}

// stacks is the ambient state pushed and popped while walking the tree.
type stacks struct {
	hostContainer valueStack[any]
	hostContext   valueStack[any]
	hostOwner     valueStack[*Fiber]

	providers valueStack[*Context]

	legacyContext       valueStack[map[string]any]
	legacyContextDidMod valueStack[bool]
	// previousLegacyContext is the context above the nearest provider,
	// restored when the provider re-merges its child context.
	previousLegacyContext map[string]any

	renderLanes valueStack[lane.Lanes]
}

type providerValue struct {
	value any
	// outer is the value of the same context above this provider.
	outer *providerValue
}

func (r *Reconciler) resetStacks() {
	r.stacks.hostContainer.reset(nil)
	r.stacks.hostContext.reset(nil)
	r.stacks.hostOwner.reset(nil)
	r.stacks.providers.reset(nil)
	r.stacks.legacyContext.reset(nil)
	r.stacks.legacyContextDidMod.reset(false)
	r.stacks.renderLanes.reset(lane.NoLanes)
	r.providerValues = map[*Context]*providerValue{}
}

func (r *Reconciler) pushHostContainer(f *Fiber, container any) {
	r.stacks.hostContainer.push(container, f)
	r.stacks.hostOwner.push(f, f)
	r.stacks.hostContext.push(r.host.GetRootHostContext(container), f)
}

func (r *Reconciler) popHostContainer(f *Fiber) {
	r.stacks.hostContext.pop(f)
	r.stacks.hostOwner.pop(f)
	r.stacks.hostContainer.pop(f)
}

func (r *Reconciler) rootHostContainer() any {
	return r.stacks.hostContainer.current
}

func (r *Reconciler) currentHostContext() any {
	return r.stacks.hostContext.current
}

// pushHostContext only pushes when the host context actually changes, so
// popHostContext checks ownership before popping.
func (r *Reconciler) pushHostContext(f *Fiber) {
	parent := r.stacks.hostContext.current
	next := r.host.GetChildHostContext(parent, f.hostType())
	if sameValue(parent, next) {
		return
	}
	r.stacks.hostOwner.push(f, f)
	r.stacks.hostContext.push(next, f)
}

func (r *Reconciler) popHostContext(f *Fiber) {
	if r.stacks.hostOwner.current != f {
		return
	}
	r.stacks.hostContext.pop(f)
	r.stacks.hostOwner.pop(f)
}

func (r *Reconciler) pushProvider(f *Fiber, value any) {
	ctx := f.Type.(*providerType).ctx
	r.stacks.providers.push(ctx, f)
	r.providerValues[ctx] = &providerValue{value: value, outer: r.providerValues[ctx]}
}

func (r *Reconciler) popProvider(f *Fiber) {
	ctx := r.stacks.providers.current
	r.stacks.providers.pop(f)
	if top := r.providerValues[ctx]; top != nil && top.outer != nil {
		r.providerValues[ctx] = top.outer
	} else {
		delete(r.providerValues, ctx)
	}
}

func (r *Reconciler) currentContextValue(ctx *Context) any {
	if v, ok := r.providerValues[ctx]; ok {
		return v.value
	}
	return ctx.defaultValue
}

func (r *Reconciler) pushTopLevelLegacyContext(f *Fiber, context map[string]any, didChange bool) {
	r.stacks.legacyContext.push(context, f)
	r.stacks.legacyContextDidMod.push(didChange, f)
}

func (r *Reconciler) popTopLevelLegacyContext(f *Fiber) {
	r.stacks.legacyContextDidMod.pop(f)
	r.stacks.legacyContext.pop(f)
}

func (r *Reconciler) hasLegacyContextChanged() bool {
	return r.stacks.legacyContextDidMod.current
}

// unmaskedLegacyContext is the context f sees from the providers above
// it, excluding what f itself provides.
func (r *Reconciler) unmaskedLegacyContext(f *Fiber) map[string]any {
	if isLegacyContextProvider(f) {
		return r.stacks.previousLegacyContext
	}
	return r.stacks.legacyContext.current
}

func isLegacyContextProvider(f *Fiber) bool {
	if f.Kind != KindClass {
		return false
	}
	_, ok := f.StateNode.(ChildContextProvider)
	return ok
}

// pushLegacyContextProvider pushes the child context merged during the
// provider's last render so a bailed out subtree still sees it.
func (r *Reconciler) pushLegacyContextProvider(f *Fiber) {
	b := f.StateNode.(Instance).base()
	r.stacks.previousLegacyContext = r.stacks.legacyContext.current
	merged := b.mergedChildContext
	if merged == nil {
		merged = r.stacks.legacyContext.current
	}
	r.stacks.legacyContext.push(merged, f)
	r.stacks.legacyContextDidMod.push(r.stacks.legacyContextDidMod.current, f)
}

// invalidateLegacyContextProvider re-merges the provider's child context
// after it rendered.
func (r *Reconciler) invalidateLegacyContextProvider(f *Fiber, didChange bool) {
	if !didChange {
		r.stacks.legacyContextDidMod.pop(f)
		r.stacks.legacyContextDidMod.push(false, f)
		return
	}
	inst := f.StateNode.(Instance)
	b := inst.base()
	merged := make(map[string]any)
	maps.Copy(merged, r.stacks.previousLegacyContext)
	maps.Copy(merged, inst.(ChildContextProvider).ChildContext())
	b.mergedChildContext = merged

	r.stacks.legacyContextDidMod.pop(f)
	r.stacks.legacyContext.pop(f)
	r.stacks.legacyContext.push(merged, f)
	r.stacks.legacyContextDidMod.push(true, f)
}

func (r *Reconciler) popLegacyContext(f *Fiber) {
	r.stacks.legacyContextDidMod.pop(f)
	r.stacks.legacyContext.pop(f)
}

// pushRenderLanes widens the lanes rendered below f, used by offscreen
// subtrees that resume deferred work.
func (r *Reconciler) pushRenderLanes(f *Fiber, lanes lane.Lanes) {
	r.stacks.renderLanes.push(r.subtreeRenderLanes, f)
	r.subtreeRenderLanes |= lanes
	r.wipRootIncludedLanes |= lanes
}

func (r *Reconciler) popRenderLanes(f *Fiber) {
	r.subtreeRenderLanes = r.stacks.renderLanes.current
	r.stacks.renderLanes.pop(f)
}
