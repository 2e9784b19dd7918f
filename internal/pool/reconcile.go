package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corvexa/ingestord/internal/telemetry"
)

// reconcile tops the pool up to MinPoolSize (spec §4.1 reconcile). Any
// individual provisionOne failure is logged; the pass only returns an error
// if every dispatched task failed.
func (e *Engine) reconcile(ctx context.Context) error {
	available, provisioning, err := e.ledger.CountAvailableAndRecentlyProvisioning(ctx, e.cfg.TimeThreshold)
	if err != nil {
		return fmt.Errorf("counting pool: %w", err)
	}
	recordPoolGauge(available)

	deficit := e.cfg.MinPoolSize - (available + provisioning)
	if deficit <= 0 {
		return nil
	}

	if e.cfg.MaxPoolSize > 0 && available+provisioning+deficit > e.cfg.MaxPoolSize {
		deficit = e.cfg.MaxPoolSize - (available + provisioning)
		if deficit <= 0 {
			return nil
		}
	}

	sem := semaphore.NewWeighted(e.semaphoreWeight())
	g, gctx := errgroup.WithContext(ctx)

	var failuresMu successCounter
	for i := 0; i < deficit; i++ {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			if err := e.provisionOne(ctx); err != nil {
				e.logger.Warn("provisionOne failed", "error", err)
				failuresMu.incr()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("reconcile pass: %w", err)
	}

	if failuresMu.count() == deficit {
		return fmt.Errorf("reconcile pass: all %d provisionOne attempts failed", deficit)
	}

	return nil
}

// successCounter is a tiny concurrency-safe counter for tallying failures
// across the bounded-concurrency provisioning fan-out.
type successCounter struct {
	mu sync.Mutex
	n  int
}

func (c *successCounter) incr() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *successCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
