package fiber

import (
	"slices"

	"github.com/delaneyj/fiberparty/lane"
)

// Context passes a value down the tree without threading it through
// props. Components below a Provider read the nearest provided value;
// without one they read the default.
type Context struct {
	Name         string
	defaultValue any
	provider     *providerType
	consumer     *consumerType
}

type providerType struct{ ctx *Context }

type consumerType struct{ ctx *Context }

const valueProp = "value"

func NewContext(name string, defaultValue any) *Context {
	c := &Context{Name: name, defaultValue: defaultValue}
	c.provider = &providerType{ctx: c}
	c.consumer = &consumerType{ctx: c}
	return c
}

// Provider makes value visible to children.
func (c *Context) Provider(value any, children ...any) *Element {
	return H(c.provider, Props{valueProp: value}, children...)
}

// Consumer renders the result of render for the current value.
func (c *Context) Consumer(render func(value any) any) *Element {
	return H(c.consumer, nil, render)
}

type dependencies struct {
	lanes    lane.Lanes
	contexts []*Context
}

// prepareToReadContext starts a fresh dependency list for wip. Pending
// context changes propagated to it count as a received update.
func (r *Reconciler) prepareToReadContext(wip *Fiber, renderLanes lane.Lanes) {
	r.currentlyRenderingFiber = wip
	deps := wip.dependencies
	if deps == nil {
		return
	}
	if len(deps.contexts) > 0 && lane.IncludesSomeLane(deps.lanes, renderLanes) {
		r.didReceiveUpdate = true
	}
	deps.contexts = nil
}

// readContext returns the current value of ctx and records that the fiber
// being rendered depends on it.
func (r *Reconciler) readContext(ctx *Context) any {
	value := r.currentContextValue(ctx)
	f := r.currentlyRenderingFiber
	if f == nil {
		return value
	}
	if f.dependencies == nil {
		f.dependencies = &dependencies{}
	}
	if !slices.Contains(f.dependencies.contexts, ctx) {
		f.dependencies.contexts = append(f.dependencies.contexts, ctx)
	}
	return value
}

// propagateContextChange schedules work on every fiber below wip that
// read ctx, so it re-renders even if its ancestors bail out.
func (r *Reconciler) propagateContextChange(wip *Fiber, ctx *Context, renderLanes lane.Lanes) {
	f := wip.Child
	if f != nil {
		f.Return = wip
	}
	for f != nil {
		var next *Fiber
		if deps := f.dependencies; deps != nil {
			next = f.Child
			if slices.Contains(deps.contexts, ctx) {
				if f.Kind == KindClass {
					u := createUpdate(lane.NoTimestamp, lane.PickArbitraryLane(renderLanes))
					u.Tag = ForceUpdate
					enqueueUpdate(f, u)
				}
				f.Lanes |= renderLanes
				if alt := f.Alternate; alt != nil {
					alt.Lanes |= renderLanes
				}
				scheduleWorkOnParentPath(f.Return, renderLanes)
				deps.lanes |= renderLanes
			}
		} else if f.Kind == KindContextProvider && f.Type == wip.Type {
			// The nested provider shadows ctx for its subtree.
			next = nil
		} else {
			next = f.Child
		}

		if next != nil {
			next.Return = f
		} else {
			next = f
			for next != nil {
				if next == wip {
					next = nil
					break
				}
				if sib := next.Sibling; sib != nil {
					sib.Return = next.Return
					next = sib
					break
				}
				next = next.Return
			}
		}
		f = next
	}
}

func scheduleWorkOnParentPath(parent *Fiber, renderLanes lane.Lanes) {
	for node := parent; node != nil; node = node.Return {
		alt := node.Alternate
		switch {
		case !lane.IsSubsetOfLanes(node.ChildLanes, renderLanes):
			node.ChildLanes |= renderLanes
			if alt != nil {
				alt.ChildLanes |= renderLanes
			}
		case alt != nil && !lane.IsSubsetOfLanes(alt.ChildLanes, renderLanes):
			alt.ChildLanes |= renderLanes
		default:
			return
		}
	}
}
