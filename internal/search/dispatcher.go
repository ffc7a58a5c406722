// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"github.com/ManuGH/tgsearch/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultMaxWait is the global deadline of one fan-out.
	DefaultMaxWait = 5 * time.Second
	// DefaultSalvageGrace bounds the drain pass over tasks that missed the deadline.
	DefaultSalvageGrace = 10 * time.Millisecond

	minTaskWait = time.Millisecond
)

// ErrProviderPanic wraps a panic raised inside a provider call.
var ErrProviderPanic = errors.New("search: provider panicked")

// Outcome is how one per-source task ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeSalvaged
	OutcomeTimedOut
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSalvaged:
		return "salvaged"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Delivered reports whether the task's items are part of the result.
func (o Outcome) Delivered() bool {
	return o == OutcomeCompleted || o == OutcomeSalvaged
}

// Batch is the result of one source.
type Batch[T any] struct {
	Source  string
	Items   []T
	Outcome Outcome
	Err     error
}

// Job describes one fan-out: run Run once per source.
type Job[T any] struct {
	// Provider labels metrics and logs.
	Provider string
	Sources  []string
	Run      func(ctx context.Context, source string) ([]T, error)
}

// Dispatcher holds the timing policy of a fan-out.
type Dispatcher struct {
	pool    *Pool
	maxWait time.Duration
	grace   time.Duration
}

// NewDispatcher returns a Dispatcher on pool. Non-positive maxWait uses the default; a
// negative grace uses the default and zero makes the drain pass non-blocking.
func NewDispatcher(pool *Pool, maxWait, grace time.Duration) *Dispatcher {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if grace < 0 {
		grace = DefaultSalvageGrace
	}
	return &Dispatcher{pool: pool, maxWait: maxWait, grace: grace}
}

type task[T any] struct {
	source string
	done   chan struct{}
	items  []T
	err    error
	cancel context.CancelFunc
}

func (t *task[T]) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Dispatch runs job.Run for every source on the pool and collects results in two passes.
//
// Pass one walks tasks in submission order, waiting for each at most until the global
// deadline (but at least one millisecond). Pass two re-checks every unfinished task once,
// waiting no later than deadline+grace, and cancels whatever is still running. Batches
// come back in collection order: pass-one results first, then salvaged ones, then tasks
// that timed out. Failures never abort the dispatch.
func Dispatch[T any](ctx context.Context, d *Dispatcher, job Job[T]) []Batch[T] {
	start := time.Now()
	deadline := start.Add(d.maxWait)
	hardline := deadline.Add(d.grace)

	ctx, span := telemetry.Tracer(telemetry.TracerSearch).Start(ctx, "search.dispatch")
	defer span.End()
	span.SetAttributes(telemetry.SourceAttributes(job.Provider, "", "")...)

	logger := xglog.WithContext(ctx, xglog.WithComponent("search")).With().
		Str(xglog.FieldProvider, job.Provider).
		Logger()

	tasks := make([]*task[T], 0, len(job.Sources))
	defer func() {
		for _, t := range tasks {
			t.cancel()
		}
	}()

	submitCtx, cancelSubmit := context.WithDeadline(ctx, deadline)
	for _, source := range job.Sources {
		taskCtx, cancel := context.WithDeadline(ctx, hardline)
		t := &task[T]{source: source, done: make(chan struct{}), cancel: cancel}
		tasks = append(tasks, t)

		run := job.Run
		err := d.pool.Submit(submitCtx, func() {
			defer func() {
				if r := recover(); r != nil {
					t.err = fmt.Errorf("%w: %v", ErrProviderPanic, r)
				}
				close(t.done)
			}()
			if taskCtx.Err() != nil {
				t.err = taskCtx.Err()
				return
			}
			t.items, t.err = run(taskCtx, t.source)
		})
		if err != nil {
			t.err = err
			close(t.done)
		}
	}
	cancelSubmit()

	batches := make([]Batch[T], 0, len(tasks))
	collect := func(t *task[T], outcome Outcome) {
		b := Batch[T]{Source: t.source, Outcome: outcome}
		if outcome != OutcomeTimedOut {
			if t.err != nil {
				b.Outcome = OutcomeFailed
				b.Err = t.err
				logger.Warn().Err(t.err).Str(xglog.FieldSource, t.source).Msg("provider failed")
			} else {
				b.Items = t.items
			}
		}
		metrics.RecordSourceOutcome(job.Provider, b.Outcome.String())
		batches = append(batches, b)
	}

	// Pass one.
	var incomplete []*task[T]
	for _, t := range tasks {
		if waitFor(ctx, t.done, max(minTaskWait, time.Until(deadline))) {
			collect(t, OutcomeCompleted)
		} else {
			incomplete = append(incomplete, t)
		}
	}

	// Pass two.
	salvaged, timedOut := 0, 0
	var stragglers []*task[T]
	for _, t := range incomplete {
		if t.finished() || waitFor(ctx, t.done, time.Until(hardline)) {
			collect(t, OutcomeSalvaged)
			salvaged++
			continue
		}
		t.cancel()
		stragglers = append(stragglers, t)
	}
	for _, t := range stragglers {
		collect(t, OutcomeTimedOut)
		timedOut++
		logger.Debug().Str(xglog.FieldSource, t.source).Msg("provider missed the deadline; result discarded")
	}

	results := 0
	for _, b := range batches {
		results += len(b.Items)
	}
	span.SetAttributes(telemetry.DispatchAttributes(results, salvaged, timedOut)...)
	if timedOut == len(tasks) && len(tasks) > 0 {
		span.SetStatus(codes.Error, "every provider timed out")
	}
	logger.Debug().
		Str(xglog.FieldEvent, "search.dispatch").
		Int("sources", len(tasks)).
		Int(xglog.FieldResults, results).
		Int("salvaged", salvaged).
		Int("timed_out", timedOut).
		Dur("elapsed", time.Since(start)).
		Msg("dispatch finished")
	return batches
}

// waitFor waits until done is closed, d elapses or ctx ends. d <= 0 only polls.
func waitFor(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		select {
		case <-done:
			return true
		default:
			return false
		}
	case <-ctx.Done():
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}
