package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/fiberparty/fiber"
	"github.com/delaneyj/fiberparty/memhost"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const (
	rowsKey    = "rows"
	itersKey   = "iters"
	pprofKey   = "pprof"
	legacyKey  = "legacy"
	verboseKey = "verbose"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Time keyed list operations through the reconciler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  rowsKey,
				Usage: "Rows in the list",
				Value: 1_000,
			},
			&cli.IntFlag{
				Name:  itersKey,
				Usage: "Samples per operation",
				Value: 50,
			},
			&cli.StringFlag{
				Name:  pprofKey,
				Usage: "Write a CPU profile to this file",
			},
			&cli.BoolFlag{
				Name:  legacyKey,
				Usage: "Render into a legacy (synchronous) root",
			},
			&cli.BoolFlag{
				Name:  verboseKey,
				Usage: "Log reconciler commits",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String(pprofKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return errors.Wrap(err, "start profile")
		}
		defer pprof.StopCPUProfile()
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if cmd.Bool(verboseKey) {
		logger.SetLevel(logrus.DebugLevel)
	}

	rows := int(cmd.Int(rowsKey))
	iters := int(cmd.Int(itersKey))
	logger.WithFields(logrus.Fields{"rows": rows, "iters": iters}).Info("warming up")

	b := newBench(logger, cmd.Bool(legacyKey))
	if _, _, err := b.sample(ops(rows)[0], 1); err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetTitle(fmt.Sprintf("Keyed list, %d rows", rows))
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"operation", "avg", "min", "p75", "p99", "max", "host ops"})

	for _, op := range ops(rows) {
		calc, hostOps, err := b.sample(op, iters)
		if err != nil {
			return errors.Wrap(err, op.name)
		}
		tbl.AppendRow(table.Row{
			op.name,
			calc.Time.Avg,
			calc.Time.Min,
			calc.Time.P75,
			calc.Time.P99,
			calc.Time.Max,
			hostOps,
		})
	}
	tbl.Render()
	return nil
}

type row struct {
	id    int
	label string
}

type bench struct {
	host  *memhost.Host
	sched *scheduler.Scheduler
	r     *fiber.Reconciler
	root  *fiber.Root
	app   *fiber.Func

	rows   []row
	nextID int
	random *rand.Rand
}

func newBench(logger *logrus.Logger, legacy bool) *bench {
	b := &bench{random: rand.New(rand.NewSource(0))}
	b.host = memhost.New(memhost.WithLogger(logger))
	b.sched = scheduler.New(scheduler.WithLogger(logger))
	b.r = fiber.New(b.host, b.sched, fiber.WithLogger(logger))

	var opts []fiber.RootOption
	if legacy {
		opts = append(opts, fiber.Legacy())
	}
	b.root = b.r.CreateRoot(b.host.NewContainer(), opts...)

	rowComp := fiber.Component("Row", func(_ *fiber.Hooks, props fiber.Props) (any, error) {
		return fiber.H("tr", nil,
			fiber.H("td", fiber.Props{"class": "id"}, props["id"]),
			fiber.H("td", fiber.Props{"class": "label"}, props["label"]),
		), nil
	})
	b.app = fiber.Component("Table", func(_ *fiber.Hooks, props fiber.Props) (any, error) {
		rows := props["rows"].([]row)
		children := make([]any, len(rows))
		for i, r := range rows {
			children[i] = fiber.H(rowComp, fiber.Props{"key": r.id, "id": r.id, "label": r.label})
		}
		return fiber.H("table", nil, fiber.H("tbody", nil, children...)), nil
	})
	return b
}

var adjectives = []string{"pretty", "large", "big", "small", "tall", "short", "long", "handsome", "plain", "quaint"}

var nouns = []string{"table", "chair", "house", "bbq", "desk", "car", "pony", "cookie", "sandwich", "burger"}

func (b *bench) build(n int) []row {
	rows := make([]row, n)
	for i := range rows {
		b.nextID++
		rows[i] = row{
			id:    b.nextID,
			label: adjectives[b.random.Intn(len(adjectives))] + " " + nouns[b.random.Intn(len(nouns))],
		}
	}
	return rows
}

// commit renders the current rows and drains the scheduler.
func (b *bench) commit() error {
	if err := b.root.Render(fiber.H(b.app, fiber.Props{"rows": b.rows})); err != nil {
		return err
	}
	b.sched.FlushAll()
	_, err := b.r.FlushPassiveEffects()
	return err
}

type op struct {
	name  string
	setup func(b *bench)
	apply func(b *bench)
}

func ops(n int) []op {
	fill := func(b *bench) { b.rows = b.build(n) }
	return []op{
		{name: fmt.Sprintf("create %d rows", n), setup: func(b *bench) { b.rows = nil }, apply: fill},
		{name: fmt.Sprintf("replace %d rows", n), setup: fill, apply: fill},
		{name: "update every 10th row", setup: fill, apply: func(b *bench) {
			rows := append([]row(nil), b.rows...)
			for i := 0; i < len(rows); i += 10 {
				rows[i].label += " !!!"
			}
			b.rows = rows
		}},
		{name: "swap rows", setup: fill, apply: func(b *bench) {
			if len(b.rows) < 3 {
				return
			}
			rows := append([]row(nil), b.rows...)
			last := len(rows) - 2
			rows[1], rows[last] = rows[last], rows[1]
			b.rows = rows
		}},
		{name: "remove row", setup: fill, apply: func(b *bench) {
			i := len(b.rows) / 2
			b.rows = append(append([]row(nil), b.rows[:i]...), b.rows[i+1:]...)
		}},
		{name: fmt.Sprintf("append %d rows", n/10), setup: fill, apply: func(b *bench) {
			b.rows = append(append([]row(nil), b.rows...), b.build(n/10)...)
		}},
		{name: "clear rows", setup: fill, apply: func(b *bench) { b.rows = nil }},
	}
}

// sample times iters applications of o, each after committing its setup.
// It also returns the host operations the last timed commit issued.
func (b *bench) sample(o op, iters int) (*tachymeter.Metrics, int, error) {
	tach := tachymeter.New(&tachymeter.Config{Size: iters})
	hostOps := 0
	for i := 0; i < iters; i++ {
		o.setup(b)
		if err := b.commit(); err != nil {
			return nil, 0, err
		}
		b.host.ResetOps()
		o.apply(b)

		start := time.Now()
		if err := b.commit(); err != nil {
			return nil, 0, err
		}
		tach.AddTime(time.Since(start))
		hostOps = len(b.host.Ops())
	}
	return tach.Calc(), hostOps, nil
}
