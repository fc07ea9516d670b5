package fiber_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/delaneyj/fiberparty/fiber"
	"github.com/delaneyj/fiberparty/memhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func effectLogger(name string, log *[]string) *fiber.Func {
	return fiber.Component(name, func(h *fiber.Hooks, props fiber.Props) (any, error) {
		v := props["v"]
		h.UseEffect(func() (func() error, error) {
			*log = append(*log, fmt.Sprintf("create %s%v", name, v))
			return func() error {
				*log = append(*log, fmt.Sprintf("destroy %s%v", name, v))
				return nil
			}, nil
		}, nil)
		return nil, nil
	})
}

// should run every passive destroy before any passive create
func TestPassiveDestroysBeforeCreates(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var log []string
	a, b := effectLogger("A", &log), effectLogger("B", &log)
	tree := func(v int) *fiber.Element {
		return fiber.Fragment(fiber.H(a, fiber.Props{"v": v}), fiber.H(b, fiber.Props{"v": v}))
	}

	h.render(root, tree(1))
	assert.Equal(t, []string{"create A1", "create B1"}, log)

	log = nil
	h.render(root, tree(2))
	assert.Equal(t, []string{"destroy A1", "destroy B1", "create A2", "create B2"}, log)

	log = nil
	require.NoError(t, root.Unmount())
	h.sched.FlushAll()
	assert.ElementsMatch(t, []string{"destroy A2", "destroy B2"}, log)
}

// should skip effects whose deps did not change
func TestEffectDeps(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	runs := 0
	comp := fiber.Component("Deps", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		h.UseEffect(func() (func() error, error) {
			runs++
			return nil, nil
		}, []any{props["dep"]})
		return nil, nil
	})

	h.render(root, fiber.H(comp, fiber.Props{"dep": "a"}))
	h.render(root, fiber.H(comp, fiber.Props{"dep": "a"}))
	assert.Equal(t, 1, runs)
	h.render(root, fiber.H(comp, fiber.Props{"dep": "b"}))
	assert.Equal(t, 2, runs)
}

// should run layout effects inside the commit and passive ones afterwards
func TestLayoutAndPassiveTiming(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var log []string
	comp := fiber.Component("Timing", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		v := props["v"]
		h.UseLayoutEffect(func() (func() error, error) {
			log = append(log, fmt.Sprintf("layout create %v", v))
			return func() error {
				log = append(log, fmt.Sprintf("layout destroy %v", v))
				return nil
			}, nil
		}, nil)
		h.UseEffect(func() (func() error, error) {
			log = append(log, fmt.Sprintf("passive create %v", v))
			return func() error {
				log = append(log, fmt.Sprintf("passive destroy %v", v))
				return nil
			}, nil
		}, nil)
		return nil, nil
	})

	require.NoError(t, root.Render(fiber.H(comp, fiber.Props{"v": 1})))
	assert.Equal(t, []string{"layout create 1"}, log)

	// Pending passive effects run before the next render starts.
	log = nil
	require.NoError(t, root.Render(fiber.H(comp, fiber.Props{"v": 2})))
	assert.Equal(t, []string{"passive create 1", "layout destroy 1", "layout create 2"}, log)

	log = nil
	did, err := h.r.FlushPassiveEffects()
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, []string{"passive destroy 1", "passive create 2"}, log)

	log = nil
	require.NoError(t, root.Unmount())
	assert.Equal(t, []string{"layout destroy 2"}, log)
	h.sched.FlushAll()
	assert.Equal(t, []string{"layout destroy 2", "passive destroy 2"}, log)
}

// should collect errors from effects and keep running the rest
func TestEffectErrorsAreReturned(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	boom := errors.New("boom")
	ran := false
	comp := fiber.Component("Faulty", func(h *fiber.Hooks, _ fiber.Props) (any, error) {
		h.UseLayoutEffect(func() (func() error, error) {
			return nil, boom
		}, []any{})
		h.UseLayoutEffect(func() (func() error, error) {
			ran = true
			return nil, nil
		}, []any{})
		return nil, nil
	})
	err := root.Render(fiber.H(comp, nil))
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran)
}

type tracker struct {
	fiber.Base
	log *[]string
}

func (c *tracker) Render() (any, error) {
	return fiber.H("span", nil, c.Props()["label"]), nil
}

func (c *tracker) DidMount() error {
	*c.log = append(*c.log, "mount "+c.Props()["label"].(string))
	return nil
}

func (c *tracker) SnapshotBeforeUpdate(prevProps fiber.Props, _ fiber.State) (any, error) {
	return prevProps["label"], nil
}

func (c *tracker) DidUpdate(_ fiber.Props, _ fiber.State, snapshot any) error {
	*c.log = append(*c.log, fmt.Sprintf("update %v->%v", snapshot, c.Props()["label"]))
	return nil
}

func (c *tracker) WillUnmount() error {
	*c.log = append(*c.log, "unmount")
	return nil
}

// should call class lifecycles in commit order
func TestClassLifecycle(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var log []string
	cls := &fiber.Class{Name: "Tracker", New: func(fiber.Props) fiber.Instance {
		return &tracker{log: &log}
	}}

	require.NoError(t, root.Render(fiber.H(cls, fiber.Props{"label": "a"})))
	require.NoError(t, root.Render(fiber.H(cls, fiber.Props{"label": "b"})))
	assert.Equal(t, "<span>b</span>", h.markup())
	require.NoError(t, root.Render(nil))
	assert.Equal(t, []string{"mount a", "update a->b", "unmount"}, log)
	assert.Equal(t, "", h.markup())
}

type clicker struct {
	fiber.Base
}

func (c *clicker) Render() (any, error) {
	return fiber.H("b", nil, c.State().(map[string]any)["n"]), nil
}

// should merge partial state and run the callback after the commit
func TestClassSetState(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var inst *clicker
	cls := &fiber.Class{
		Name: "Clicker",
		New: func(fiber.Props) fiber.Instance {
			inst = &clicker{}
			return inst
		},
		InitialState: func(fiber.Props) fiber.State {
			return map[string]any{"n": 0, "keep": true}
		},
	}
	require.NoError(t, root.Render(fiber.H(cls, nil)))

	var seen string
	inst.SetState(map[string]any{"n": 5}, func() error {
		seen = h.markup()
		return nil
	})
	assert.Equal(t, "<b>5</b>", seen)
	assert.Equal(t, true, inst.State().(map[string]any)["keep"])

	inst.SetState(fiber.StateUpdater(func(prev fiber.State, _ fiber.Props) (fiber.State, error) {
		return map[string]any{"n": prev.(map[string]any)["n"].(int) + 1}, nil
	}), nil)
	assert.Equal(t, "<b>6</b>", h.markup())
}

// should attach refs after mount and detach them on removal
func TestRefs(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	obj := &fiber.RefObject{}
	var calls []any
	fn := fiber.RefFunc(func(v any) error {
		calls = append(calls, v)
		return nil
	})

	require.NoError(t, root.Render(fiber.H("div", nil,
		fiber.H("input", fiber.Props{"ref": obj}),
		fiber.H("span", fiber.Props{"ref": fn}),
	)))
	require.IsType(t, &memhost.Node{}, obj.Current)
	assert.Equal(t, "input", obj.Current.(*memhost.Node).Type)
	require.Len(t, calls, 1)
	assert.Equal(t, "span", calls[0].(*memhost.Node).Type)

	require.NoError(t, root.Render(fiber.H("div", nil)))
	assert.Nil(t, obj.Current)
	require.Len(t, calls, 2)
	assert.Nil(t, calls[1])
}

// should reject refs on components that have no instance
func TestInvalidRef(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	comp := fiber.Component("Plain", func(*fiber.Hooks, fiber.Props) (any, error) {
		return nil, nil
	})
	err := root.Render(fiber.H(comp, fiber.Props{"ref": &fiber.RefObject{}}))
	assert.ErrorIs(t, err, fiber.ErrInvalidRef)
}

// should ask the host to mount autofocused elements
func TestCommitMount(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	require.NoError(t, root.Render(fiber.H("input", fiber.Props{"autoFocus": true})))
	mounts := h.host.OpsOf(memhost.OpMount)
	require.Len(t, mounts, 1)
	assert.True(t, mounts[0].Node.Mounted)
}
