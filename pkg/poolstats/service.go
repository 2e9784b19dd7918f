// Package poolstats exposes a read-only view of the Collection Pool
// Provisioner's warm set (spec §4.1), so operators can see pool health
// without querying Postgres directly.
package poolstats

import (
	"context"
	"time"
)

// Ledger is the subset of *ledger.Store the pool stats service needs.
type Ledger interface {
	CountAvailableAndRecentlyProvisioning(ctx context.Context, threshold time.Duration) (available, provisioning int, err error)
}

// Stats is a snapshot of the warm pool's size.
type Stats struct {
	Available           int
	RecentlyProvisioning int
}

// Service reads pool stats.
type Service struct {
	ledger    Ledger
	threshold time.Duration
}

// New constructs a Service. threshold should match the provisioner's
// provisioningMaxAge so the "recently provisioning" count lines up with what
// the reconcile loop itself sees.
func New(store Ledger, threshold time.Duration) *Service {
	return &Service{ledger: store, threshold: threshold}
}

// Get returns the current pool snapshot.
func (s *Service) Get(ctx context.Context) (Stats, error) {
	available, provisioning, err := s.ledger.CountAvailableAndRecentlyProvisioning(ctx, s.threshold)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Available: available, RecentlyProvisioning: provisioning}, nil
}
