package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corvexa/ingestord/internal/telemetry"
)

// cleanup drops stranded, failed, or orphaned collections (spec §4.1
// cleanup). On drop failure the ledger row is left for the next pass.
func (e *Engine) cleanup(ctx context.Context) error {
	candidates, err := e.ledger.ListForCleanup(ctx, provisioningMaxAge)
	if err != nil {
		return fmt.Errorf("listing cleanup candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(e.semaphoreWeight())
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			if err := e.vs.DropCollection(ctx, c.CollectionName); err != nil {
				e.logger.Warn("dropping vector collection failed, will retry next pass",
					"collection_id", c.ID, "collection_name", c.CollectionName, "status", c.Status, "error", err)
				telemetry.PoolDroppedTotal.WithLabelValues("drop_failed").Inc()
				return nil
			}

			if err := e.ledger.DeleteCollectionRow(ctx, c.ID); err != nil {
				e.logger.Error("deleting collection row after successful drop", "collection_id", c.ID, "error", err)
				telemetry.PoolDroppedTotal.WithLabelValues("ledger_delete_failed").Inc()
				return nil
			}

			telemetry.PoolDroppedTotal.WithLabelValues(string(c.Status)).Inc()
			e.logger.Info("reaped vector collection", "collection_id", c.ID, "collection_name", c.CollectionName, "status", c.Status)
			return nil
		})
	}

	return g.Wait()
}
