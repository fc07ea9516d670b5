// Package fiber reconciles a declarative element tree against a mutable
// host tree.
//
// A Reconciler keeps, per Root, two trees of fibers: the committed one
// and a work-in-progress one built by rendering components. Rendering is
// split into units of work that may be interrupted between fibers when
// the scheduler asks to yield, and resumed or restarted later. Once the
// work-in-progress tree is complete its effects are committed to the
// HostConfig in one uninterruptible pass, and the trees swap roles.
//
// Updates carry a lane (see package lane). A render processes only the
// updates whose lanes it includes; the rest stay queued and are rebased
// onto the result later, so the final state never depends on the order
// in which lanes were rendered.
//
// Components are *Func values rendering with Hooks, or *Class values
// whose instances embed Base. Elements are built with H:
//
//	app := fiber.Component("App", func(h *fiber.Hooks, props fiber.Props) (any, error) {
//		count, setCount := h.UseState(0)
//		return fiber.H("button", fiber.Props{"onClick": func() { setCount(count.(int) + 1) }},
//			fmt.Sprint(count)), nil
//	})
//	root := r.CreateRoot(container)
//	err := root.Render(fiber.H(app, nil))
//
// A Reconciler, its roots and its scheduler belong to a single goroutine.
package fiber
