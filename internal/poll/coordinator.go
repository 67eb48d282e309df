// Package poll implements the data coordinator used by the bridge: a
// periodic fetch that caches the last successful snapshot and keeps
// serving it when a poll fails. A scheduler goroutine owned by the
// coordinator invokes Refresh on an interval; callers can also force an
// out-of-band Refresh after a write so the new state shows up without
// waiting for the next tick.
package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FetchFunc retrieves one snapshot from the device.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Coordinator periodically fetches a snapshot of type T and caches the last
// good result. A failed refresh never overwrites a previous snapshot.
type Coordinator[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	logger   *zap.Logger

	mu        sync.RWMutex
	data      T
	hasData   bool
	lastErr   error
	listeners []func()

	started  bool
	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// New creates a coordinator. The loop is not started until Start is called;
// use Refresh directly for the first fetch so setup can fail fast.
func New[T any](name string, interval time.Duration, fetch FetchFunc[T], logger *zap.Logger) *Coordinator[T] {
	return &Coordinator[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger.With(zap.String("coordinator", name)),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Name returns the coordinator name used in logs and metrics.
func (c *Coordinator[T]) Name() string { return c.name }

// Refresh performs one fetch. On success the cached snapshot is replaced and
// the error state cleared; on failure the previous snapshot is retained and
// the error recorded. Listeners are notified either way. Refresh is safe to
// call concurrently with the scheduled loop.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	data, err := c.fetch(ctx)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
	} else {
		c.data = data
		c.hasData = true
		c.lastErr = nil
	}
	listeners := make([]func(), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Refresh failed, keeping previous snapshot", zap.Error(err))
	} else {
		c.logger.Debug("Refresh succeeded")
	}

	for _, fn := range listeners {
		fn()
	}

	return err
}

// Data returns the last successful snapshot. ok is false until the first
// refresh has succeeded.
func (c *Coordinator[T]) Data() (data T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.hasData
}

// LastError returns the error of the most recent refresh, or nil if it
// succeeded.
func (c *Coordinator[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// AddListener registers fn to run after every refresh, successful or not.
// Listeners observe either the previous snapshot or the new one, never a
// partial update.
func (c *Coordinator[T]) AddListener(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start launches the scheduled refresh loop. The loop stops when ctx is
// cancelled or Stop is called; errors from scheduled refreshes are recorded
// but never stop the loop.
func (c *Coordinator[T]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.stopped)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				//nolint:errcheck // recorded in lastErr and logged
				c.Refresh(ctx)
			}
		}
	}()
}

// Stop terminates the scheduled loop and waits for it to exit. A coordinator
// that was never started stops immediately.
func (c *Coordinator[T]) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})

	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if !started {
		return
	}

	select {
	case <-c.stopped:
	case <-time.After(time.Second):
	}
}
