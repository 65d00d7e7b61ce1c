// Package pipeline runs relay stages in declaration order, the way a host
// runtime schedules the handlers that read and write targeted events.
//
// Stages run one after another on the calling goroutine; parallelism lives
// inside a stage, in the drains it performs on the worker pool. A stage
// error stops the run. Store violations are panics and are not recovered
// here: they are programmer errors and fail the whole run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one handler of a pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// StageReport describes one executed stage.
type StageReport struct {
	Name     string        `json:"name"`
	Seq      int64         `json:"seq"`
	Duration time.Duration `json:"duration_ns"`
}

// Report describes one pipeline run.
type Report struct {
	Token  string        `json:"token"`
	Stages []StageReport `json:"stages"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTokens sets the run token generator.
//
// Default: UUIDv7Generator
func WithTokens(gen TokenGenerator) Option {
	return func(p *Pipeline) {
		p.tokens = gen
	}
}

// WithSequencer sets the clock stamping stage reports.
//
// Default: a fresh Clock per pipeline
func WithSequencer(seq Sequencer) Option {
	return func(p *Pipeline) {
		p.seq = seq
	}
}

// WithLogger sets the logger.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline is an ordered list of stages.
//
// INVARIANTS:
//   - stage order NEVER changes after construction
//   - stage names are unique
type Pipeline struct {
	stages []Stage
	tokens TokenGenerator
	seq    Sequencer
	logger *slog.Logger
}

// New creates a pipeline. The stages slice is copied so later changes by
// the caller cannot reorder it. Returns an error for unnamed or duplicate
// stages.
func New(stages []Stage, opts ...Option) (*Pipeline, error) {
	seen := make(map[string]bool, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("stage %d: name is required", i)
		}
		if st.Run == nil {
			return nil, fmt.Errorf("stage %q: run func is required", st.Name)
		}
		if seen[st.Name] {
			return nil, fmt.Errorf("stage %q: duplicate name", st.Name)
		}
		seen[st.Name] = true
	}

	p := &Pipeline{
		stages: append([]Stage(nil), stages...),
		tokens: UUIDv7Generator{},
		seq:    NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes every stage in order and reports what ran.
// It stops at the first stage error or when ctx is done between stages;
// the partial report is returned alongside the error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{Token: p.tokens.Generate()}
	logger := p.logger.With("run", report.Token)

	logger.Info("pipeline starting", "stages", len(p.stages))
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			logger.Info("pipeline stopping: context cancelled", "next_stage", st.Name)
			return report, err
		}

		seq := p.seq.Next()
		start := time.Now()
		err := st.Run(ctx)
		elapsed := time.Since(start)

		report.Stages = append(report.Stages, StageReport{Name: st.Name, Seq: seq, Duration: elapsed})
		if err != nil {
			logger.Error("stage failed", "stage", st.Name, "seq", seq, "error", err)
			return report, fmt.Errorf("stage %s: %w", st.Name, err)
		}

		logger.Debug("stage finished", "stage", st.Name, "seq", seq, "duration", elapsed)
	}

	logger.Info("pipeline finished", "stages", len(report.Stages))
	return report, nil
}
