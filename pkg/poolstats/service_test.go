package poolstats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	available, provisioning int
	gotThreshold             time.Duration
}

func (f *fakeLedger) CountAvailableAndRecentlyProvisioning(ctx context.Context, threshold time.Duration) (int, int, error) {
	f.gotThreshold = threshold
	return f.available, f.provisioning, nil
}

func TestGetReturnsSnapshot(t *testing.T) {
	fl := &fakeLedger{available: 3, provisioning: 1}
	s := New(fl, 10*time.Minute)

	stats, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Available: 3, RecentlyProvisioning: 1}, stats)
	assert.Equal(t, 10*time.Minute, fl.gotThreshold)
}
