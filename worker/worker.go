// Package worker provides cancellable, pausable background loops.
//
// A Worker calls its tick function once per period until it is asked to
// stop. Stopping is cooperative: RequestStop lets an in-flight tick finish,
// and Join blocks until the loop has exited.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Func performs one tick of work. Returning an error terminates the worker.
type Func func(ctx context.Context) error

var (
	ErrAlreadyStarted = errors.New("worker already started")
	ErrNotStarted     = errors.New("worker not started")
)

// Worker owns one goroutine running a periodic loop.
type Worker struct {
	name   string
	period time.Duration
	tick   Func
	logger logrus.FieldLogger

	mu      sync.Mutex
	paused  bool
	started bool
	stop    chan struct{}
	stopped bool
	done    chan struct{}
	err     error
}

// New returns a worker that calls tick every period once started.
func New(name string, period time.Duration, tick Func, logger logrus.FieldLogger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		name:   name,
		period: period,
		tick:   tick,
		logger: logger.WithField("worker", name),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Period() time.Duration {
	return w.period
}

// Start launches the loop. The context is handed to every tick; canceling
// it also ends the loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true
	w.logger.Debugf("starting with period %v", w.period)
	go w.run(ctx)
	return nil
}

// RequestStop asks the loop to exit after the current tick. It does not wait.
func (w *Worker) RequestStop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
}

// Pause makes the loop skip its work while still waking every period.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

func (w *Worker) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Running reports whether the loop has been started and has not exited.
func (w *Worker) Running() bool {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done is closed once the loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Join blocks until the loop has exited and returns the fault that ended
// it, if any. Joining a worker that was never started returns immediately.
func (w *Worker) Join() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stop is RequestStop followed by Join.
func (w *Worker) Stop() error {
	w.RequestStop()
	return w.Join()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("context canceled; exiting")
			return
		case <-w.stop:
			w.logger.Debug("stop requested; exiting")
			return
		default:
		}
		if !w.Paused() {
			if err := w.safeTick(ctx); err != nil {
				w.logger.Errorf("terminated: %v", err)
				w.mu.Lock()
				w.err = err
				w.mu.Unlock()
				return
			}
		}
		select {
		case <-ctx.Done():
		case <-w.stop:
		case <-t.C:
		}
	}
}

func (w *Worker) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", w.name, r)
		}
	}()
	return w.tick(ctx)
}
