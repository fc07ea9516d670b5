package fiber_test

import (
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/delaneyj/fiberparty/fiber"
	"github.com/delaneyj/fiberparty/memhost"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t         *testing.T
	clock     *fakeclock.FakeClock
	sched     *scheduler.Scheduler
	host      *memhost.Host
	r         *fiber.Reconciler
	container *memhost.Node
	errs      []error
}

func newHarness(t *testing.T, opts ...fiber.Option) *harness {
	h := &harness{t: t}
	h.clock = fakeclock.NewFakeClock(time.Unix(0, 0))
	h.sched = scheduler.New(scheduler.WithClock(h.clock))
	h.host = memhost.New()
	h.container = h.host.NewContainer()
	opts = append([]fiber.Option{fiber.WithErrorHandler(func(_ *fiber.Root, err error) {
		h.errs = append(h.errs, err)
	})}, opts...)
	h.r = fiber.New(h.host, h.sched, opts...)
	return h
}

func (h *harness) concurrentRoot() *fiber.Root {
	return h.r.CreateRoot(h.container)
}

func (h *harness) legacyRoot() *fiber.Root {
	return h.r.CreateRoot(h.container, fiber.Legacy())
}

// render schedules el and runs every task it leads to.
func (h *harness) render(root *fiber.Root, el any) {
	require.NoError(h.t, root.Render(el))
	h.sched.FlushAll()
}

func (h *harness) markup() string {
	return memhost.Markup(h.container)
}

// placedText lists the text of every node appended or inserted since the
// last reset.
func (h *harness) placedText() []string {
	var out []string
	for _, op := range h.host.OpsOf(memhost.OpAppend, memhost.OpInsert) {
		out = append(out, op.Node.TextContent())
	}
	return out
}

// promise is a Wakeable resolved by the test.
type promise struct {
	value   string
	done    bool
	waiters []func()
}

func (p *promise) Then(onSettled func()) {
	if p.done {
		onSettled()
		return
	}
	p.waiters = append(p.waiters, onSettled)
}

func (p *promise) resolve(value string) {
	p.value = value
	p.done = true
	waiters := p.waiters
	p.waiters = nil
	for _, fn := range waiters {
		fn()
	}
}

// readPromise renders the value of the "p" prop, suspending until it is
// resolved.
var readPromise = fiber.Component("Read", func(_ *fiber.Hooks, props fiber.Props) (any, error) {
	p := props["p"].(*promise)
	if !p.done {
		return nil, fiber.Suspend(p)
	}
	return fiber.H("span", nil, p.value), nil
})

func list(keys ...string) *fiber.Element {
	items := make([]any, len(keys))
	for i, k := range keys {
		items[i] = fiber.H("li", fiber.Props{"key": k}, k)
	}
	return fiber.H("ul", nil, items...)
}
