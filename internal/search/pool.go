// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultQueueSize bounds tasks waiting for a worker.
const DefaultQueueSize = 256

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("search: worker pool stopped")

// Pool is a fixed-size worker pool shared by every dispatch.
type Pool struct {
	workers int
	tasks   chan func()
	quit    chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	logger zerolog.Logger
}

var (
	sharedOnce sync.Once
	shared     *Pool
)

// SharedPool returns the process-wide pool (2×GOMAXPROCS workers), started on first use.
func SharedPool() *Pool {
	sharedOnce.Do(func() {
		shared = NewPool(2*runtime.GOMAXPROCS(0), DefaultQueueSize)
		shared.Start()
	})
	return shared
}

// NewPool creates a stopped pool. Non-positive sizes fall back to the defaults.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan func(), queueSize),
		quit:    make(chan struct{}),
		logger:  xglog.WithComponent("search"),
	}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Debug().Int("workers", p.workers).Int("queue", cap(p.tasks)).Msg("starting worker pool")
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop lets running tasks finish and stops the workers. Queued tasks are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}

// Submit queues fn, blocking while the queue is full until ctx is done.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	select {
	case p.tasks <- fn:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		metrics.IncPoolRejected()
		return fmt.Errorf("search: queue full: %w", ctx.Err())
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case fn := <-p.tasks:
			p.run(id, fn)
		}
	}
}

func (p *Pool) run(id int, fn func()) {
	metrics.AddPoolInFlight(1)
	defer metrics.AddPoolInFlight(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}
