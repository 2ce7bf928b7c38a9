// Package dispatch runs fire-and-forget work that must outlive the request
// that started it.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cancelGrace is how long Wait lets cancelled tasks unwind once its
// deadline has passed.
var cancelGrace = 10 * time.Second

// Dispatcher starts background tasks and tracks them for shutdown.
type Dispatcher struct {
	wg     sync.WaitGroup
	base   context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher.
func New() *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{base: base, cancel: cancel}
}

// Go runs fn in its own goroutine on a context that keeps ctx's values but
// not its cancellation. Tasks are cancelled only when a Wait deadline passes.
// The task's outcome is logged; callers never see it.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(context.Context) error) {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(d.base, cancel)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer stop()
		defer cancel()
		log := zap.L().With(zap.String("task", name))
		start := time.Now()

		err := run(taskCtx, fn)
		if err != nil {
			log.Error("dispatch: task failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			return
		}
		log.Info("dispatch: task complete", zap.Duration("elapsed", time.Since(start)))
	}()
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("dispatch: panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task returns. When ctx is done first, the
// running tasks are cancelled and given cancelGrace to return before Wait
// reports ctx's error. Tasks started afterwards begin cancelled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	d.cancel()
	timer := time.NewTimer(cancelGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		zap.L().Warn("dispatch: tasks ignored cancellation", zap.Duration("grace", cancelGrace))
	}
	return ctx.Err()
}
