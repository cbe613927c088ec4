// Package lifecycle coordinates startup hooks, background workers, and
// ordered shutdown for long-running processes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrShutdownTimeout is returned when workers or hooks outlive the
// shutdown deadline.
var ErrShutdownTimeout = errors.New("shutdown timed out")

// Coordinator owns a context that is cancelled on Shutdown. Startup hooks
// run concurrently; shutdown hooks run in reverse registration order.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	startup  []func(context.Context) error
	shutdown []func(context.Context) error

	workers sync.WaitGroup
	ready   atomic.Bool
}

// New creates a Coordinator whose context derives from parent.
func New(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Context returns the coordinator context.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a hook run by Start.
func (c *Coordinator) OnStartup(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startup = append(c.startup, fn)
}

// OnShutdown registers a hook run by Shutdown after workers stop.
func (c *Coordinator) OnShutdown(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = append(c.shutdown, fn)
}

// Go runs fn in the background until the coordinator context is cancelled.
// Shutdown waits for it to return.
func (c *Coordinator) Go(fn func(context.Context)) {
	c.workers.Go(func() { fn(c.ctx) })
}

// Start runs every startup hook concurrently and marks the coordinator
// ready if all succeed.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	hooks := c.startup
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(c.ctx)
	for _, fn := range hooks {
		g.Go(func() error { return fn(ctx) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	c.ready.Store(true)
	return nil
}

// Ready reports whether Start completed and Shutdown has not begun.
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// Shutdown cancels the context, waits for workers, then runs shutdown
// hooks newest first. Hook errors are joined.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.ready.Store(false)
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("%w after %v", ErrShutdownTimeout, timeout)
	}

	c.mu.Lock()
	hooks := c.shutdown
	c.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
