package worker

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Group keeps at most one live worker per key. Replacing the worker for a
// key stops and joins the predecessor before the successor starts, so the
// writes each key guards are totally ordered.
type Group struct {
	logger logrus.FieldLogger

	mu      sync.Mutex
	workers map[string]*Worker
}

func NewGroup(logger logrus.FieldLogger) *Group {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Group{
		logger:  logger,
		workers: make(map[string]*Worker),
	}
}

// Replace installs w as the owner of key. Any previous owner is stopped and
// joined first; a fault it reported is logged, not returned.
func (g *Group) Replace(ctx context.Context, key string, w *Worker) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked(key)
	if err := w.Start(ctx); err != nil {
		return err
	}
	g.workers[key] = w
	return nil
}

// Stop stops and joins the owner of key, if there is one.
func (g *Group) Stop(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopLocked(key)
}

func (g *Group) stopLocked(key string) error {
	old, ok := g.workers[key]
	if !ok {
		return nil
	}
	delete(g.workers, key)
	err := old.Stop()
	if err != nil {
		g.logger.Errorf("worker %q ended with: %v", key, err)
	}
	return err
}

// StopAll stops every worker in the group and waits for all of them.
func (g *Group) StopAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range g.workers {
		w.RequestStop()
	}
	var errs []error
	for key := range g.workers {
		if err := g.stopLocked(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the current owner of key, or nil.
func (g *Group) Get(key string) *Worker {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.workers[key]
}

// Keys lists the keys with a live owner, sorted.
func (g *Group) Keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.workers))
	for k := range g.workers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
