// Package seed provisions a development user, a dev API key, and a sample
// knowledge base so a fresh local environment has something to call the API
// against. Idempotent: if the dev user already exists it logs and returns.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvexa/ingestord/internal/authtoken"
	"github.com/corvexa/ingestord/internal/ledger"
)

// DevUserEmail is the email of the user created by Run.
const DevUserEmail = "dev@ingestord.local"

// Run provisions a development user, issues a dev API key, and binds a
// sample knowledge base from the warm pool. It is idempotent: if the dev
// user already exists it logs a message and returns nil without reissuing
// credentials.
func Run(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	store := ledger.New(pool)

	if existing, err := store.GetUserByEmail(ctx, DevUserEmail); err == nil {
		logger.Info("seed: dev user already exists, skipping", "user_id", existing.ID)
		return nil
	}

	user, err := store.CreateUser(ctx, DevUserEmail, ledger.RoleAdmin)
	if err != nil {
		return fmt.Errorf("creating dev user: %w", err)
	}
	logger.Info("seed: created dev user", "user_id", user.ID, "email", user.Email)

	keyMgr := authtoken.NewManager(pool)
	if err := keyMgr.Init(ctx); err != nil {
		return fmt.Errorf("initializing encryption key manager: %w", err)
	}

	auth := authtoken.NewAuthenticator(pool, keyMgr)
	issued, err := auth.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issuing dev api key: %w", err)
	}
	logger.Info("seed: issued dev api key (shown once)", "user_id", user.ID, "api_key", issued.Raw)

	kb, err := store.CreateKnowledgeBase(ctx, user.ID, "sample-knowledge-base", "general")
	if err != nil {
		if errors.Is(err, ledger.ErrNoAvailableCollection) {
			logger.Warn("seed: no vector collection available yet, skipping sample knowledge base; run again once the pool has provisioned one")
			return nil
		}
		return fmt.Errorf("creating sample knowledge base: %w", err)
	}
	logger.Info("seed: created sample knowledge base", "kb_id", kb.ID, "name", kb.Name)

	return nil
}
