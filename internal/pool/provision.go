package pool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/corvexa/ingestord/internal/telemetry"
)

// provisionOne inserts a PROVISIONING row, creates the matching vector
// collection, then flips the row to AVAILABLE (spec §4.1 provisionOne).
// If collection creation fails the row is deleted (compensating action);
// if the final flip fails the row is left PROVISIONING for the cleanup
// pass to reap.
func (e *Engine) provisionOne(ctx context.Context) error {
	name := randomCollectionName()

	row, err := e.ledger.InsertProvisioningCollection(ctx, name)
	if err != nil {
		telemetry.PoolProvisionedTotal.WithLabelValues("ledger_insert_failed").Inc()
		return fmt.Errorf("inserting provisioning row for %q: %w", name, err)
	}

	if err := e.vs.CreateCollection(ctx, name); err != nil {
		if delErr := e.ledger.DeleteCollectionRow(ctx, row.ID); delErr != nil {
			e.logger.Error("compensating delete of failed provisioning row", "collection_id", row.ID, "error", delErr)
		}
		telemetry.PoolProvisionedTotal.WithLabelValues("create_failed").Inc()
		return fmt.Errorf("creating vector collection %q: %w", name, err)
	}

	if err := e.ledger.MarkCollectionAvailable(ctx, row.ID); err != nil {
		telemetry.PoolProvisionedTotal.WithLabelValues("mark_available_failed").Inc()
		return fmt.Errorf("marking collection %q available: %w", name, err)
	}

	telemetry.PoolProvisionedTotal.WithLabelValues("success").Inc()
	e.logger.Info("provisioned vector collection", "collection_id", row.ID, "collection_name", name)
	return nil
}

func randomCollectionName() string {
	return "kb-" + uuid.NewString()
}
