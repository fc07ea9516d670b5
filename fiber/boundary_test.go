package fiber_test

import (
	"errors"
	"testing"

	"github.com/delaneyj/fiberparty/fiber"
	"github.com/delaneyj/fiberparty/memhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boundary struct {
	fiber.Base
	caught *[]error
}

func (b *boundary) Render() (any, error) {
	if msg, ok := b.State().(string); ok {
		return fiber.H("p", nil, msg), nil
	}
	return b.Props().Children(), nil
}

func (b *boundary) DidCatch(err error) error {
	*b.caught = append(*b.caught, err)
	return nil
}

func newBoundary(caught *[]error) *fiber.Class {
	return &fiber.Class{
		Name: "Boundary",
		New: func(fiber.Props) fiber.Instance {
			return &boundary{caught: caught}
		},
		DerivedStateFromError: func(error) fiber.State {
			return "caught"
		},
	}
}

func failing(err error) *fiber.Func {
	return fiber.Component("Failing", func(*fiber.Hooks, fiber.Props) (any, error) {
		return nil, err
	})
}

// should render the boundary's captured state in place of the failed subtree
func TestErrorBoundaryCatches(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	boom := errors.New("boom")
	var caught []error

	require.NoError(t, root.Render(fiber.H("main", nil,
		fiber.H(newBoundary(&caught), nil,
			fiber.H("span", nil, "sibling"),
			fiber.H(failing(boom), nil),
		),
	)))
	assert.Equal(t, "<main><p>caught</p></main>", h.markup())
	require.NotEmpty(t, caught)
	assert.ErrorIs(t, caught[0], boom)
}

// should catch panics like returned errors
func TestErrorBoundaryCatchesPanics(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var caught []error
	panicky := fiber.Component("Panicky", func(*fiber.Hooks, fiber.Props) (any, error) {
		panic("kaboom")
	})

	h.render(root, fiber.H(newBoundary(&caught), nil, fiber.H(panicky, nil)))
	assert.Equal(t, "<p>caught</p>", h.markup())
	require.NotEmpty(t, caught)
	var pe *fiber.PanicError
	require.ErrorAs(t, caught[0], &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

// should pass errors the inner boundary cannot render up to the outer one
func TestNestedBoundaries(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var outer, inner []error
	brokenBoundary := &fiber.Class{
		Name: "Broken",
		New: func(fiber.Props) fiber.Instance {
			return &boundary{caught: &inner}
		},
		// Not a string, so the boundary renders its failing children again.
		DerivedStateFromError: func(error) fiber.State {
			return 42
		},
	}

	require.NoError(t, root.Render(fiber.H(newBoundary(&outer), nil,
		fiber.H(brokenBoundary, nil, fiber.H(failing(errors.New("boom")), nil)),
	)))
	assert.Equal(t, "<p>caught</p>", h.markup())
	assert.NotEmpty(t, outer)
	assert.Empty(t, inner)
}

// should return errors no boundary captures and leave the host untouched
func TestUncaughtRenderError(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	require.NoError(t, root.Render(fiber.H("span", nil, "ok")))

	boom := errors.New("boom")
	err := root.Render(fiber.H(failing(boom), nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "<span>ok</span>", h.markup())
}

// should report uncaught errors of concurrent renders to the error handler
func TestUncaughtConcurrentError(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	boom := errors.New("boom")
	h.render(root, fiber.H(failing(boom), nil))
	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], boom)
	assert.Equal(t, "", h.markup())
}

// should retry a failed concurrent render once, synchronously
func TestRetryAfterError(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	var caught []error
	attempts := 0
	flaky := fiber.Component("Flaky", func(*fiber.Hooks, fiber.Props) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return fiber.H("span", nil, "recovered"), nil
	})

	h.render(root, fiber.H(newBoundary(&caught), nil, fiber.H(flaky, nil)))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "<span>recovered</span>", h.markup())
	assert.Empty(t, caught)
}

// should capture errors raised by commit effects in the nearest boundary
func TestCommitErrorCaptured(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var caught []error
	boom := errors.New("layout failed")
	comp := fiber.Component("LayoutFail", func(h *fiber.Hooks, _ fiber.Props) (any, error) {
		h.UseLayoutEffect(func() (func() error, error) {
			return nil, boom
		}, []any{})
		return fiber.H("span", nil, "content"), nil
	})

	require.NoError(t, root.Render(fiber.H(newBoundary(&caught), nil, fiber.H(comp, nil))))
	assert.Equal(t, "<p>caught</p>", h.markup())
	require.NotEmpty(t, caught)
	assert.ErrorIs(t, caught[0], boom)
}

// should show the fallback until the suspended data resolves
func TestSuspenseMount(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	p := &promise{}

	h.render(root, fiber.Suspense(fiber.H("i", nil, "loading"), fiber.H(readPromise, fiber.Props{"p": p})))
	assert.Equal(t, "<i>loading</i>", h.markup())
	assert.Empty(t, h.errs)

	p.resolve("data")
	h.sched.FlushAll()
	assert.Equal(t, "<span>data</span>", h.markup())
}

// should hide shown content behind the fallback while an update suspends
func TestSuspenseUpdateHidesContent(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()
	ready := &promise{}
	ready.resolve("one")
	tree := func(p *promise) *fiber.Element {
		return fiber.Suspense(fiber.H("i", nil, "loading"), fiber.H(readPromise, fiber.Props{"p": p}))
	}

	h.render(root, tree(ready))
	require.Equal(t, "<span>one</span>", h.markup())

	pending := &promise{}
	h.render(root, tree(pending))
	assert.Equal(t, "<span hidden>one</span><i>loading</i>", h.markup())
	assert.NotEmpty(t, h.host.OpsOf(memhost.OpHide))

	pending.resolve("two")
	h.sched.FlushAll()
	assert.Equal(t, "<span>two</span>", h.markup())
}

// should fail when a component suspends outside any suspense boundary
func TestSuspendWithoutBoundary(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	err := root.Render(fiber.H(readPromise, fiber.Props{"p": &promise{}}))
	assert.ErrorIs(t, err, fiber.ErrNoSuspenseBoundary)
}

// should hand a suspension with no suspense boundary to an error boundary
func TestErrorBoundaryCatchesMissingSuspense(t *testing.T) {
	h := newHarness(t)
	root := h.legacyRoot()
	var caught []error

	require.NoError(t, root.Render(fiber.H(newBoundary(&caught), nil,
		fiber.H(readPromise, fiber.Props{"p": &promise{}}),
	)))
	assert.Equal(t, "<p>caught</p>", h.markup())
	require.NotEmpty(t, caught)
	assert.ErrorIs(t, caught[0], fiber.ErrNoSuspenseBoundary)
}

// should keep hidden offscreen content out of sight and reveal it later
func TestOffscreen(t *testing.T) {
	h := newHarness(t)
	root := h.concurrentRoot()

	h.render(root, fiber.H("div", nil, fiber.Offscreen(fiber.OffscreenVisible, fiber.H("b", nil, "x"))))
	assert.Equal(t, "<div><b>x</b></div>", h.markup())

	h.render(root, fiber.H("div", nil, fiber.Offscreen(fiber.OffscreenHidden, fiber.H("b", nil, "x"))))
	assert.Equal(t, "<div><b hidden>x</b></div>", h.markup())

	h.render(root, fiber.H("div", nil, fiber.Offscreen(fiber.OffscreenVisible, fiber.H("b", nil, "y"))))
	assert.Equal(t, "<div><b>y</b></div>", h.markup())
}
