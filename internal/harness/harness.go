package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/targeted/internal/pipeline"
	"github.com/roach88/targeted/internal/pool"
	"github.com/roach88/targeted/internal/targeted"
	"github.com/roach88/targeted/internal/testutil"
	"github.com/roach88/targeted/internal/world"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	pool           *pool.Pool
	workers        int
	roster         *world.Roster
	affinityChecks bool
	logger         *slog.Logger
	clock          *pipeline.Clock
}

// WithPool runs on an existing pool instead of starting one. The caller
// keeps ownership and closes it.
func WithPool(p *pool.Pool) Option {
	return func(c *runConfig) {
		c.pool = p
	}
}

// WithWorkers overrides the scenario's pool size. Ignored with WithPool.
func WithWorkers(n int) Option {
	return func(c *runConfig) {
		c.workers = n
	}
}

// WithRoster replaces the scenario's entities with r, typically one loaded
// with world.LoadRoster. Despawn flags do not apply to it.
func WithRoster(r *world.Roster) Option {
	return func(c *runConfig) {
		c.roster = r
	}
}

// WithAffinityChecks toggles the handle identity check on both stores.
//
// Default: true
func WithAffinityChecks(enabled bool) Option {
	return func(c *runConfig) {
		c.affinityChecks = enabled
	}
}

// WithClock stamps stages with c, reset to 0 at the start of the run.
//
// Default: a new clock per run
func WithClock(c *pipeline.Clock) Option {
	return func(cfg *runConfig) {
		cfg.clock = c
	}
}

// WithLogger sets the logger for the pipeline and both stores.
//
// Default: discards everything
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Start (or borrow) a pool and build the roster
//  2. push: push every event exclusively into the print store, then
//     despawn flagged entities
//  3. print: drain the print store joined with names, shared-push
//     "name append" into the shout store
//  4. shout: drain the shout store joined with ages, upper-case each
//     message into "MESSAGE is age"
//  5. Compare with the scenario's expectations
//
// Stages are stamped by a clock restarted at 0 and the run token is
// fixed, so the result of a scenario does not depend on the worker count.
// Store violations are not recovered: they panic out of Run.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		workers:        scenario.Workers,
		affinityChecks: true,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = pipeline.NewClock()
	}
	cfg.clock.Reset()

	p := cfg.pool
	if p == nil {
		p = pool.New(cfg.workers)
		defer p.Close()
	}

	roster, despawn := cfg.roster, []world.Entity(nil)
	if roster == nil {
		roster, despawn = buildRoster(scenario.Entities)
	}

	targets := make([]world.Entity, len(scenario.Events))
	for i, ev := range scenario.Events {
		e, ok := roster.Member(ev.Target)
		if !ok {
			return nil, fmt.Errorf("events[%d]: target %d out of range (%d entities)", i, ev.Target, len(roster.Members))
		}
		targets[i] = e
	}

	printStore := targeted.New[string](p, targeted.ByMethod[world.Entity](),
		targeted.WithName(StagePrint),
		targeted.WithAffinityChecks(cfg.affinityChecks),
		targeted.WithLogger(cfg.logger),
	)
	shoutStore := targeted.New[string](p, targeted.ByMethod[world.Entity](),
		targeted.WithName(StageShout),
		targeted.WithAffinityChecks(cfg.affinityChecks),
		targeted.WithLogger(cfg.logger),
	)

	printer := targeted.NewReader(printStore, roster.Names)
	shouts := targeted.NewWriter(shoutStore)
	shouter := targeted.NewReader(shoutStore, roster.Ages)

	result := NewResult()
	result.Workers = p.Size()

	var mu sync.Mutex
	stages := []pipeline.Stage{
		{Name: StagePush, Run: func(context.Context) error {
			for i, ev := range scenario.Events {
				printStore.PushExclusive(targets[i], ev.Append)
			}
			for _, e := range despawn {
				roster.World.Despawn(e)
			}
			return nil
		}},
		{Name: StagePrint, Run: func(context.Context) error {
			printer.DrainParallel(func(h targeted.Handle[world.Entity], suffix string, name string) {
				shouts.PushShared(h, name+" "+suffix)
			})
			result.Skipped.Print = printer.Skipped()
			return nil
		}},
		{Name: StageShout, Run: func(context.Context) error {
			shouter.DrainParallel(func(_ targeted.Handle[world.Entity], msg string, age int) {
				// a Caser is stateful, never share one across workers
				line := cases.Upper(language.Und).String(msg) + " is " + strconv.Itoa(age)
				mu.Lock()
				defer mu.Unlock()
				result.Lines = append(result.Lines, line)
			})
			sort.Strings(result.Lines)
			result.Skipped.Shout = shouter.Skipped()
			return nil
		}},
	}

	pl, err := pipeline.New(stages,
		pipeline.WithTokens(testutil.NewStaticTokens(scenario.RunToken)),
		pipeline.WithSequencer(cfg.clock),
		pipeline.WithLogger(cfg.logger.With("scenario", scenario.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	report, err := pl.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result.RunToken = report.Token
	for _, st := range report.Stages {
		result.Stages = append(result.Stages, StageTrace{Name: st.Name, Seq: st.Seq})
	}

	checkExpect(scenario.Expect, result)
	return result, nil
}

// buildRoster spawns the scenario's entities and returns those flagged
// for despawn.
func buildRoster(specs []EntitySpec) (*world.Roster, []world.Entity) {
	roster := world.NewRoster()
	var despawn []world.Entity
	for _, spec := range specs {
		e := roster.Add(spec.Name, spec.Age)
		if spec.Despawn {
			despawn = append(despawn, e)
		}
	}
	return roster, despawn
}

func checkExpect(expect *Expect, result *Result) {
	if expect == nil {
		return
	}
	if expect.Lines != nil && !slices.Equal(expect.Lines, result.Lines) {
		result.AddError(fmt.Sprintf("lines: expected %q, got %q", expect.Lines, result.Lines))
	}
	if expect.Skipped != nil && int64(*expect.Skipped) != result.Skipped.Total() {
		result.AddError(fmt.Sprintf("skipped: expected %d, got %d", *expect.Skipped, result.Skipped.Total()))
	}
}
