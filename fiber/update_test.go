package fiber_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/delaneyj/fiberparty/fiber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(setter *func(any)) *fiber.Func {
	return fiber.Component("Counter", func(h *fiber.Hooks, _ fiber.Props) (any, error) {
		n, set := h.UseState(0)
		*setter = set
		return fiber.H("span", nil, n), nil
	})
}

func inc(prev any) any { return prev.(int) + 1 }

func double(prev any) any { return prev.(int) * 2 }

// should apply every queued update exactly once
func TestStateUpdatesAreNotLost(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var set func(any)
	h.render(root, fiber.H(counter(&set), nil))
	assert.Equal(t, "<span>0</span>", h.markup())

	set(inc)
	set(inc)
	set(inc)
	h.sched.FlushAll()
	assert.Equal(t, "<span>3</span>", h.markup())
}

// should skip scheduling when the next state equals the current one
func TestEagerStateBailout(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var set func(any)
	h.render(root, fiber.H(counter(&set), nil))

	commits := h.host.Commits()
	set(0)
	assert.False(t, h.sched.HasPendingWork())
	h.sched.FlushAll()
	assert.Equal(t, commits, h.host.Commits())
}

// should render urgent updates first and rebase the skipped ones so the
// result matches applying them in order
func TestRebaseSkippedUpdates(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var set func(any)
	h.render(root, fiber.H(counter(&set), nil))
	set(inc)
	h.sched.FlushAll()
	require.Equal(t, "<span>1</span>", h.markup())

	set(inc)
	require.NoError(t, h.r.FlushSync(func() error {
		set(double)
		return nil
	}))
	assert.Equal(t, "<span>2</span>", h.markup(), "only the sync update is applied")

	h.sched.FlushAll()
	assert.Equal(t, "<span>4</span>", h.markup(), "(1+1)*2")
}

// should batch updates made inside BatchedUpdates into one commit
func TestBatchedUpdates(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var set func(any)
	require.NoError(t, root.Render(fiber.H(counter(&set), nil)))

	commits := h.host.Commits()
	require.NoError(t, h.r.BatchedUpdates(func() error {
		set(inc)
		set(inc)
		return nil
	}))
	assert.Equal(t, "<span>2</span>", h.markup())
	assert.Equal(t, commits+1, h.host.Commits())
}

// should commit each legacy update outside a batch on its own
func TestLegacyUpdatesFlushImmediately(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var set func(any)
	require.NoError(t, root.Render(fiber.H(counter(&set), nil)))

	set(inc)
	assert.Equal(t, "<span>1</span>", h.markup())
	set(inc)
	assert.Equal(t, "<span>2</span>", h.markup())
}

type labeledList struct {
	setLabel func(any)
	renders  int
	app      *fiber.Func
}

func newLabeledList() *labeledList {
	l := &labeledList{}
	item := fiber.Component("Item", func(_ *fiber.Hooks, props fiber.Props) (any, error) {
		l.renders++
		return fiber.H("li", nil, props["n"]), nil
	})
	l.app = fiber.Component("App", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		label, set := h.UseState("a")
		l.setLabel = set
		children := []any{fiber.H("h1", nil, label)}
		for i := 0; i < props["count"].(int); i++ {
			children = append(children, fiber.H(item, fiber.Props{"key": i, "n": i}))
		}
		return fiber.H("div", nil, children...), nil
	})
	return l
}

func listMarkup(label string, count int) string {
	s := "<div><h1>" + label + "</h1>"
	for i := 0; i < count; i++ {
		s += fmt.Sprintf("<li>%d</li>", i)
	}
	return s + "</div>"
}

// should yield between fibers and resume the same render later
func TestRenderYieldsAndResumes(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	l := newLabeledList()
	h.render(root, fiber.H(l.app, fiber.Props{"count": 3}))
	committed := root.Current()

	require.NoError(t, root.Render(fiber.H(l.app, fiber.Props{"count": 5})))
	h.sched.YieldAfter(3)
	require.True(t, h.sched.RunNext(), "the render yielded with work left")
	assert.Same(t, committed, root.Current(), "nothing was committed")
	assert.Equal(t, listMarkup("a", 3), h.markup())

	h.sched.FlushAll()
	assert.Equal(t, listMarkup("a", 5), h.markup())
	assert.Empty(t, h.errs)
}

// should let a sync update interrupt a yielded render and then finish both
func TestSyncUpdateInterruptsRender(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	l := newLabeledList()
	h.render(root, fiber.H(l.app, fiber.Props{"count": 3}))

	require.NoError(t, root.Render(fiber.H(l.app, fiber.Props{"count": 5})))
	h.sched.YieldAfter(3)
	require.True(t, h.sched.RunNext())

	require.NoError(t, h.r.FlushSync(func() error {
		l.setLabel("b")
		return nil
	}))
	assert.Equal(t, listMarkup("b", 3), h.markup(), "the sync render skips the pending default update")

	h.sched.FlushAll()
	assert.Equal(t, listMarkup("b", 5), h.markup())
}

// should render a starved update without yielding once it expires
func TestStarvedUpdateExpires(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	require.NoError(t, root.Render(fiber.H("span", nil, "late")))

	h.clock.Increment(10 * time.Second)
	h.sched.YieldAfter(0)
	h.sched.RunNext()
	assert.Equal(t, "<span>late</span>", h.markup())
}

// should keep transition updates apart from default ones
func TestTransitionLanes(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var set func(any)
	h.render(root, fiber.H(counter(&set), nil))

	h.r.StartTransition(func() {
		set(10)
	})
	assert.True(t, h.sched.HasPendingWork())
	h.sched.FlushAll()
	assert.Equal(t, "<span>10</span>", h.markup())
}

// should stop a component that updates itself on every commit
func TestNestedUpdateLimit(t *testing.T) {
	h := newHarness(t, fiber.WithNestedUpdateLimit(5))
	root := h.legacyRoot()

	loop := fiber.Component("Loop", func(h *fiber.Hooks, _ fiber.Props) (any, error) {
		n, set := h.UseState(0)
		h.UseLayoutEffect(func() (func() error, error) {
			set(n.(int) + 1)
			return nil, nil
		}, nil)
		return fiber.H("span", nil, n), nil
	})
	err := root.Render(fiber.H(loop, nil))
	assert.ErrorIs(t, err, fiber.ErrNestedUpdateLimit)
}

// should stop a component that updates itself while rendering
func TestReRenderLimit(t *testing.T) {
	h := newHarness(t, fiber.WithReRenderLimit(3))
	root := h.legacyRoot()

	renders := 0
	loop := fiber.Component("Loop", func(h *fiber.Hooks, _ fiber.Props) (any, error) {
		renders++
		n, set := h.UseState(0)
		set(n.(int) + 1)
		return nil, nil
	})
	err := root.Render(fiber.H(loop, nil))
	assert.ErrorIs(t, err, fiber.ErrTooManyReRenders)
	assert.Equal(t, "", h.markup())
	assert.LessOrEqual(t, renders, 2*4)
}

// should settle render phase updates before committing
func TestRenderPhaseUpdate(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()

	clamp := fiber.Component("Clamp", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		n, set := h.UseState(props["n"])
		if n.(int) > 3 {
			set(3)
		}
		return fiber.H("span", nil, n), nil
	})
	require.NoError(t, root.Render(fiber.H(clamp, fiber.Props{"n": 9})))
	assert.Equal(t, "<span>3</span>", h.markup())
}

// should fail on hooks called in a different order
func TestHookOrder(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()

	cond := fiber.Component("Cond", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		h.UseState(0)
		if props["extra"].(bool) {
			h.UseRef(nil)
		}
		return nil, nil
	})
	require.NoError(t, root.Render(fiber.H(cond, fiber.Props{"extra": false})))
	err := root.Render(fiber.H(cond, fiber.Props{"extra": true}))
	assert.ErrorIs(t, err, fiber.ErrHookOrder)
}

// should report hooks that swap places as a hook order error
func TestHookKindChange(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()

	swap := fiber.Component("Swap", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		if props["swapped"].(bool) {
			h.UseEffect(func() (func() error, error) { return nil, nil }, nil)
			h.UseState(0)
		} else {
			h.UseState(0)
			h.UseEffect(func() (func() error, error) { return nil, nil }, nil)
		}
		return nil, nil
	})
	require.NoError(t, root.Render(fiber.H(swap, fiber.Props{"swapped": false})))
	err := root.Render(fiber.H(swap, fiber.Props{"swapped": true}))
	assert.ErrorIs(t, err, fiber.ErrHookOrder)
	var pe *fiber.PanicError
	assert.False(t, errors.As(err, &pe), "reported as a contract error, not a panic")
}

// should keep refs and memoized values across renders
func TestUseRefAndMemo(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()

	var refs []*fiber.RefObject
	computed := 0
	comp := fiber.Component("Comp", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		refs = append(refs, h.UseRef(0))
		v := h.UseMemo(func() any {
			computed++
			return props["dep"].(int) * 10
		}, []any{props["dep"]})
		return fiber.H("span", nil, v), nil
	})
	require.NoError(t, root.Render(fiber.H(comp, fiber.Props{"dep": 1})))
	require.NoError(t, root.Render(fiber.H(comp, fiber.Props{"dep": 1})))
	require.NoError(t, root.Render(fiber.H(comp, fiber.Props{"dep": 2})))

	require.Len(t, refs, 3)
	assert.Same(t, refs[0], refs[2])
	assert.Equal(t, 2, computed)
	assert.Equal(t, "<span>20</span>", h.markup())
}

// should fold actions with a reducer
func TestUseReducer(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()

	var dispatch func(any)
	comp := fiber.Component("Todo", func(h *fiber.Hooks, _ fiber.Props) (any, error) {
		items, d := h.UseReducer(func(state, action any) any {
			return append(append([]string(nil), state.([]string)...), action.(string))
		}, []string{})
		dispatch = d
		return fiber.H("span", nil, len(items.([]string))), nil
	})
	require.NoError(t, root.Render(fiber.H(comp, nil)))
	require.NoError(t, h.r.BatchedUpdates(func() error {
		dispatch("a")
		dispatch("b")
		return nil
	}))
	assert.Equal(t, "<span>2</span>", h.markup())
}

// should refuse updates after the root is unmounted
func TestUnmountedRoot(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	h.render(root, list("A", "B"))

	require.NoError(t, root.Unmount())
	h.sched.FlushAll()
	assert.Equal(t, "", h.markup())

	assert.ErrorIs(t, root.Render(list("A")), fiber.ErrUnmountedRoot)
	assert.ErrorIs(t, root.Unmount(), fiber.ErrUnmountedRoot)
}
