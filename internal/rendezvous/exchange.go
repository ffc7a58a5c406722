// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rendezvous

import (
	"context"
	"errors"
	"sync"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/rs/zerolog"
)

// ErrWaitTimeout is returned by Await when no value arrived within the timeout.
var ErrWaitTimeout = errors.New("rendezvous: wait timed out")

// DefaultPollInterval is how often Await re-reads the store for values written by
// another process.
const DefaultPollInterval = time.Second

// Exchange hands values from writers (HTTP handlers) to a blocked reader (the handshake
// goroutine). Every key has a single-slot channel; Offer persists the value and fills the
// slot, so an in-process waiter wakes immediately. The store stays the source of truth
// for observers, and Await polls it so writers sharing the store from elsewhere are seen
// within one poll interval.
type Exchange struct {
	store        Store
	pollInterval time.Duration
	logger       zerolog.Logger

	mu    sync.Mutex
	slots map[string]chan string

	// writeMu orders Offer and Discard so the store and the slot never disagree.
	writeMu sync.Mutex
}

// NewExchange wraps store. A non-positive pollInterval disables store polling.
func NewExchange(store Store, pollInterval time.Duration) *Exchange {
	return &Exchange{
		store:        store,
		pollInterval: pollInterval,
		logger:       xglog.WithComponent("rendezvous"),
		slots:        make(map[string]chan string),
	}
}

// Store returns the underlying store.
func (x *Exchange) Store() Store { return x.store }

func (x *Exchange) slot(key string) chan string {
	x.mu.Lock()
	defer x.mu.Unlock()
	ch, ok := x.slots[key]
	if !ok {
		ch = make(chan string, 1)
		x.slots[key] = ch
	}
	return ch
}

// Offer persists value under key and wakes a waiter on that key. An undelivered older
// value is replaced.
func (x *Exchange) Offer(ctx context.Context, key, value string) error {
	ch := x.slot(key)

	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	if err := x.store.Set(ctx, key, value); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
	return nil
}

// Discard deletes keys from the store and drops undelivered values. Store failures are
// logged and otherwise ignored; reset flows must not fail on them.
func (x *Exchange) Discard(ctx context.Context, keys ...string) {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	for _, key := range keys {
		x.drain(key)
		if err := x.store.Delete(ctx, key); err != nil {
			x.logger.Warn().Err(err).Str(xglog.FieldKey, key).Msg("failed to delete rendezvous key")
		}
	}
}

func (x *Exchange) drain(key string) {
	ch := x.slot(key)
	x.mu.Lock()
	defer x.mu.Unlock()
	select {
	case <-ch:
	default:
	}
}

// Await blocks until key has a value, the timeout elapses or ctx is done.
// It returns ErrWaitTimeout or ctx.Err() when no value arrived; callers treat both as
// "absent" and must not retry.
func (x *Exchange) Await(ctx context.Context, key string, timeout time.Duration) (string, error) {
	ch := x.slot(key)

	if v, ok := x.lookup(ctx, key); ok {
		x.drain(key)
		return v, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var tick <-chan time.Time
	if x.pollInterval > 0 {
		ticker := time.NewTicker(x.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case v := <-ch:
			return v, nil
		case <-tick:
			if v, ok := x.lookup(ctx, key); ok {
				x.drain(key)
				return v, nil
			}
		case <-timer.C:
			return "", ErrWaitTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (x *Exchange) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := x.store.Get(ctx, key)
	if err != nil {
		x.logger.Debug().Err(err).Str(xglog.FieldKey, key).Msg("rendezvous lookup failed")
		return "", false
	}
	return v, ok
}
