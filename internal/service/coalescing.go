package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may
// wait for.
type inFlightFetch struct {
	done   chan struct{}
	result json.RawMessage
	err    error
}

// fetchCoalescer collapses concurrent pass-through fetches for the same key
// into one upstream call. Waiters either receive the leader's result or give
// up on timeout/cancellation.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newFetchCoalescer(timeout time.Duration) *fetchCoalescer {
	return &fetchCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo joins an in-flight fetch for key if one exists, otherwise runs fn
// and publishes its result to all waiters.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, key string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	fc.mu.Lock()
	if req, ok := fc.inFlight[key]; ok {
		fc.mu.Unlock()
		return fc.wait(ctx, req)
	}

	req := &inFlightFetch{done: make(chan struct{})}
	fc.inFlight[key] = req
	fc.mu.Unlock()

	go func() {
		req.result, req.err = fn()
		close(req.done)

		fc.mu.Lock()
		delete(fc.inFlight, key)
		fc.mu.Unlock()
	}()

	return fc.wait(ctx, req)
}

func (fc *fetchCoalescer) wait(ctx context.Context, req *inFlightFetch) (json.RawMessage, error) {
	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()

	select {
	case <-req.done:
		return req.result, req.err
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	}
}
