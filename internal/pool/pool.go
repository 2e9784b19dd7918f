// Package pool is the Collection Pool Provisioner (spec §4.1): it keeps a
// warm set of AVAILABLE VectorCollections so KB creation is O(1), and
// reclaims collections that are failed, stuck provisioning, or orphaned
// after KB deletion. Two long-lived workers drain single-slot trigger
// channels, with a periodic fallback, and fan out triggers across replicas
// over Redis pub/sub.
package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corvexa/ingestord/internal/ledger"
	"github.com/corvexa/ingestord/internal/telemetry"
)

// Ledger is the subset of *ledger.Store the provisioner needs.
type Ledger interface {
	InsertProvisioningCollection(ctx context.Context, collectionName string) (*ledger.VectorCollection, error)
	MarkCollectionAvailable(ctx context.Context, id int64) error
	DeleteCollectionRow(ctx context.Context, id int64) error
	CountAvailableAndRecentlyProvisioning(ctx context.Context, threshold time.Duration) (available, provisioning int, err error)
	ListForCleanup(ctx context.Context, provisioningMaxAge time.Duration) ([]ledger.VectorCollection, error)
}

// VectorStore is the subset of *vectorstore.Gateway the provisioner needs.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string) error
	DropCollection(ctx context.Context, name string) error
}

const (
	reconcileChannel    = "ingestord:pool:reconcile"
	cleanupChannel       = "ingestord:pool:cleanup"
	reconcileFallback    = 300 * time.Second
	provisioningMaxAge   = 10 * time.Minute
)

// Config holds the provisioner's tunables (spec §6).
type Config struct {
	MinPoolSize              int
	MaxPoolSize              int
	TimeThreshold            time.Duration
	MaxConcurrentProvisioner int
}

// Engine runs the reconcile and cleanup loops.
type Engine struct {
	cfg    Config
	ledger Ledger
	vs     VectorStore
	redis  *redis.Client
	logger *slog.Logger

	reconcileCh chan struct{}
	cleanupCh   chan struct{}
}

// New constructs an Engine. redis may be nil — cross-replica fan-out is then
// disabled but the engine still runs standalone.
func New(cfg Config, store Ledger, vs VectorStore, rdb *redis.Client, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		ledger:      store,
		vs:          vs,
		redis:       rdb,
		logger:      logger,
		reconcileCh: make(chan struct{}, 1),
		cleanupCh:   make(chan struct{}, 1),
	}
}

// TriggerReconcile non-blockingly signals the reconcile worker and, if Redis
// is configured, fans the signal out to other replicas.
func (e *Engine) TriggerReconcile(ctx context.Context) {
	triggerLocal(e.reconcileCh)
	e.publish(ctx, reconcileChannel)
}

// TriggerCleanup non-blockingly signals the cleanup worker and fans out.
func (e *Engine) TriggerCleanup(ctx context.Context) {
	triggerLocal(e.cleanupCh)
	e.publish(ctx, cleanupChannel)
}

func triggerLocal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (e *Engine) publish(ctx context.Context, channel string) {
	if e.redis == nil {
		return
	}
	if err := e.redis.Publish(ctx, channel, "1").Err(); err != nil {
		e.logger.Warn("publishing pool trigger", "channel", channel, "error", err)
	}
}

// Run starts the reconcile worker, cleanup worker, and (if Redis is
// configured) the cross-replica subscriber, blocking until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() { defer close(done); e.reconcileWorker(ctx) }()

	doneCleanup := make(chan struct{})
	go func() { defer close(doneCleanup); e.cleanupWorker(ctx) }()

	if e.redis != nil {
		go e.subscribeTriggers(ctx)
	}

	// Run an immediate pass of each so a cold-started replica doesn't wait
	// for the first fallback tick.
	e.TriggerReconcile(ctx)
	e.TriggerCleanup(ctx)

	<-done
	<-doneCleanup
	return nil
}

func (e *Engine) subscribeTriggers(ctx context.Context) {
	sub := e.redis.Subscribe(ctx, reconcileChannel, cleanupChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch msg.Channel {
			case reconcileChannel:
				triggerLocal(e.reconcileCh)
			case cleanupChannel:
				triggerLocal(e.cleanupCh)
			}
		}
	}
}

func (e *Engine) reconcileWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.reconcileCh:
		case <-time.After(reconcileFallback):
		}

		drain(e.reconcileCh)

		if err := e.reconcile(ctx); err != nil {
			e.logger.Error("reconcile pass failed", "error", err)
		}
	}
}

func (e *Engine) cleanupWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.cleanupCh:
		case <-time.After(reconcileFallback):
		}

		drain(e.cleanupCh)

		if err := e.cleanup(ctx); err != nil {
			e.logger.Error("cleanup pass failed", "error", err)
		}
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

// semaphoreWeight returns the provisioner's concurrency cap as an
// int64 suitable for golang.org/x/sync/semaphore.
func (e *Engine) semaphoreWeight() int64 {
	if e.cfg.MaxConcurrentProvisioner <= 0 {
		return 1
	}
	return int64(e.cfg.MaxConcurrentProvisioner)
}

func recordPoolGauge(available int) {
	telemetry.PoolAvailableCollections.Set(float64(available))
}
