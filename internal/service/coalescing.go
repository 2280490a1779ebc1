package service

import (
	"context"
	"sync"
	"time"

	"github.com/mfortin/radar-loop-service/internal/models"
)

// loopRun is one in-flight animation build that later callers may join.
type loopRun struct {
	done      chan struct{}
	animation models.Animation
	err       error
}

// requestCoalescer merges concurrent loop requests with identical
// parameters into a single pipeline run. Loop assembly is the expensive
// path (one upstream fetch per frame), so duplicate concurrent work is
// worth collapsing.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*loopRun
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*loopRun),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of an in-flight run for key if one exists,
// otherwise starts fn and registers the run. The second return value
// reports whether this caller joined an existing run. Waiting is bounded
// by ctx and the coalescer timeout.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.Animation, error)) (models.Animation, bool, error) {
	rc.mu.Lock()
	run, joined := rc.inFlight[key]
	if !joined {
		run = &loopRun{done: make(chan struct{})}
		rc.inFlight[key] = run
		go func() {
			run.animation, run.err = fn()
			close(run.done)
			rc.mu.Lock()
			delete(rc.inFlight, key)
			rc.mu.Unlock()
		}()
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-run.done:
		return run.animation, joined, run.err
	case <-waitCtx.Done():
		return models.Animation{}, joined, waitCtx.Err()
	}
}
