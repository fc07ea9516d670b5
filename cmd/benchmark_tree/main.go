package main

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/delaneyj/fiberparty/fiber"
	"github.com/delaneyj/fiberparty/memhost"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var defaultScenarios []byte

type scenario struct {
	Name           string  `yaml:"name"`
	Breadth        int     `yaml:"breadth"`
	Depth          int     `yaml:"depth"`
	Iterations     int     `yaml:"iterations"`
	UpdateFraction float64 `yaml:"updateFraction"`
	// YieldAfter slices every render after this many units of work.
	YieldAfter int  `yaml:"yieldAfter"`
	Legacy     bool `yaml:"legacy"`
}

type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

func loadScenarios(path string) ([]scenario, error) {
	data := defaultScenarios
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, errors.Wrap(err, "read scenarios")
		}
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse scenarios")
	}
	for _, s := range f.Scenarios {
		if s.Breadth < 1 || s.Depth < 1 || s.Iterations < 1 {
			return nil, errors.Errorf("scenario %q: breadth, depth and iterations must be positive", s.Name)
		}
	}
	return f.Scenarios, nil
}

const (
	scenariosKey = "scenarios"
	repeatsKey   = "repeats"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark_tree",
		Usage: "Time batched state updates across generated component trees",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  scenariosKey,
				Usage: "YAML scenario file, the embedded set when empty",
			},
			&cli.IntFlag{
				Name:  repeatsKey,
				Usage: "Runs per scenario, the fastest is reported",
				Value: 3,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := logrus.New()
	logger.Info("Starting tree benchmark, please wait...")
	defer logger.Info("Finished tree benchmark")

	scenarios, err := loadScenarios(cmd.String(scenariosKey))
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"scenario", "size", "components", "updates", "commits",
		"slices", "time", "updates/s", "digest",
	})

	repeats := max(1, int(cmd.Int(repeatsKey)))
	for _, s := range scenarios {
		logger.WithField("scenario", s.Name).Info("running")
		var best *result
		for i := 0; i < repeats; i++ {
			res, err := runScenario(s)
			if err != nil {
				return errors.Wrap(err, s.Name)
			}
			if best == nil || res.duration < best.duration {
				best = res
			}
		}

		rate := float64(best.updates) / best.duration.Seconds()
		table.Append([]string{
			s.Name,
			fmt.Sprintf("%dx%d", s.Breadth, s.Depth),
			humanize.Comma(int64(best.components)),
			humanize.Comma(int64(best.updates)),
			humanize.Comma(int64(best.commits)),
			humanize.Comma(int64(best.slices)),
			fmt.Sprint(best.duration),
			humanize.Comma(int64(rate)),
			fmt.Sprintf("%016x", best.digest),
		})
	}
	table.Render()
	return nil
}

type result struct {
	components int
	updates    int
	commits    int
	slices     int
	duration   time.Duration
	digest     uint64
}

// tree renders a breadth-ary tree of stateful components. Every leaf
// keeps its setter so updates can be aimed at it.
type tree struct {
	setters []func(any)
	node    *fiber.Func
}

func newTree() *tree {
	t := &tree{}
	t.node = fiber.Component("Node", func(h *fiber.Hooks, props fiber.Props) (any, error) {
		depth := props["depth"].(int)
		breadth := props["breadth"].(int)
		n, set := h.UseState(0)
		if depth == 0 {
			idx := props["index"].(int)
			if idx >= len(t.setters) {
				t.setters = append(t.setters, make([]func(any), idx+1-len(t.setters))...)
			}
			t.setters[idx] = set
			return fiber.H("span", nil, fmt.Sprintf("%d:%d", idx, n)), nil
		}
		children := make([]any, breadth)
		for i := range children {
			children[i] = fiber.H(t.node, fiber.Props{
				"key":     i,
				"depth":   depth - 1,
				"breadth": breadth,
				"index":   props["index"].(int)*breadth + i,
			})
		}
		return fiber.H("div", nil, children...), nil
	})
	return t
}

func bump(prev any) any { return prev.(int) + 1 }

func runScenario(s scenario) (*result, error) {
	host := memhost.New()
	sched := scheduler.New()
	var renderErr error
	r := fiber.New(host, sched, fiber.WithErrorHandler(func(_ *fiber.Root, err error) {
		renderErr = err
	}))

	var opts []fiber.RootOption
	if s.Legacy {
		opts = append(opts, fiber.Legacy())
	}
	container := host.NewContainer()
	root := r.CreateRoot(container, opts...)

	res := &result{}
	drain := func() {
		for {
			if s.YieldAfter > 0 {
				sched.YieldAfter(s.YieldAfter)
			}
			res.slices++
			if !sched.RunNext() {
				return
			}
		}
	}

	t := newTree()
	if err := root.Render(fiber.H(t.node, fiber.Props{"depth": s.Depth, "breadth": s.Breadth, "index": 0})); err != nil {
		return nil, err
	}
	drain()
	if renderErr != nil {
		return nil, renderErr
	}
	leaves := len(t.setters)
	res.components = int(math.Pow(float64(s.Breadth), float64(s.Depth+1))-1) / max(s.Breadth-1, 1)
	if s.Breadth == 1 {
		res.components = s.Depth + 1
	}

	random := rand.New(rand.NewSource(0))
	perIteration := max(1, int(float64(leaves)*s.UpdateFraction))
	commits := host.Commits()
	res.slices = 0

	start := time.Now()
	for i := 0; i < s.Iterations; i++ {
		err := r.BatchedUpdates(func() error {
			for j := 0; j < perIteration; j++ {
				t.setters[random.Intn(leaves)](bump)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		res.updates += perIteration
		drain()
		if renderErr != nil {
			return nil, renderErr
		}
	}
	res.duration = time.Since(start)
	res.commits = host.Commits() - commits
	res.digest = memhost.Digest(container)

	if got := strings.Count(memhost.Markup(container), "<span>"); got != leaves {
		return nil, errors.Errorf("rendered %d leaves, want %d", got, leaves)
	}
	return res, nil
}
