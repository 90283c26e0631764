package refresh

import (
	"context"
	"sync"
	"time"

	"pricewatch/internal/domain/searches"
)

// Run is the handle of one background refresh.
type Run struct {
	SearchID  searches.SearchID
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func newRun(parent context.Context, id searches.SearchID) *Run {
	ctx, cancel := context.WithCancel(parent)
	return &Run{SearchID: id, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Done is closed once the refresh has written its terminal status.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the refresh ends or ctx expires.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome of a finished refresh and nil while it runs.
// ErrCancelled means the run was stopped before all windows were attempted.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Cancel asks the refresh to stop before its next window.
func (r *Run) Cancel() { r.cancel() }

func (r *Run) finish(err error) {
	r.once.Do(func() {
		r.err = err
		r.cancel()
		close(r.done)
	})
}
