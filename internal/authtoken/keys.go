// Package authtoken owns the durable state backing an API-key authenticator:
// encryption-key rotation bookkeeping and key-credential hashing/signing
// primitives. It does not implement login flows, OIDC, or session cookies —
// those are out of scope (spec §1).
package authtoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EncryptionKey mirrors the encryption_keys table. Exactly one row has
// IsActive=true at any time (used for signing new API keys); others are kept
// for verification until ExpiredAt passes.
type EncryptionKey struct {
	ID        int64
	Material  []byte
	IsActive  bool
	ExpiredAt *time.Time
	CreatedAt time.Time
}

// KeyMaterialBytes is the size of newly generated key material.
const KeyMaterialBytes = 32

// Manager owns the active EncryptionKey with explicit init and a lock
// guarding rotation (spec §9: "Global mutable key cache... owned by a Token
// Manager with explicit init and a lock guarding rotation; never
// module-level").
type Manager struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	active *EncryptionKey
}

// NewManager creates a Manager. Call Init before use.
func NewManager(pool *pgxpool.Pool) *Manager {
	return &Manager{pool: pool}
}

// Init loads the current active key, generating one if none exists yet.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.loadActive(ctx)
	if err != nil {
		if err != pgx.ErrNoRows {
			return fmt.Errorf("loading active encryption key: %w", err)
		}
		key, err = m.insertNewActive(ctx)
		if err != nil {
			return fmt.Errorf("bootstrapping encryption key: %w", err)
		}
	}

	m.active = key
	return nil
}

// Active returns the currently active key. Callers must call Init first.
func (m *Manager) Active() *EncryptionKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Rotate generates a new key, deactivates the previous active key (expiring
// it expireAfter from now so it remains valid for verification of
// already-issued ApiKeys), and makes the new key active.
func (m *Manager) Rotate(ctx context.Context, expireAfter time.Duration) (*EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var newKey *EncryptionKey
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if m.active != nil {
			expiresAt := time.Now().Add(expireAfter)
			if _, err := tx.Exec(ctx,
				`UPDATE encryption_keys SET is_active = false, expired_at = $2 WHERE id = $1`,
				m.active.ID, expiresAt,
			); err != nil {
				return fmt.Errorf("deactivating encryption key %d: %w", m.active.ID, err)
			}
		}

		material := make([]byte, KeyMaterialBytes)
		if _, err := rand.Read(material); err != nil {
			return fmt.Errorf("generating key material: %w", err)
		}

		k := &EncryptionKey{Material: material, IsActive: true}
		if err := tx.QueryRow(ctx,
			`INSERT INTO encryption_keys (material, is_active) VALUES ($1, true) RETURNING id, created_at`,
			material,
		).Scan(&k.ID, &k.CreatedAt); err != nil {
			return fmt.Errorf("inserting new active encryption key: %w", err)
		}

		newKey = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.active = newKey
	return newKey, nil
}

func (m *Manager) loadActive(ctx context.Context) (*EncryptionKey, error) {
	var k EncryptionKey
	err := m.pool.QueryRow(ctx,
		`SELECT id, material, is_active, expired_at, created_at FROM encryption_keys WHERE is_active = true LIMIT 1`,
	).Scan(&k.ID, &k.Material, &k.IsActive, &k.ExpiredAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (m *Manager) insertNewActive(ctx context.Context) (*EncryptionKey, error) {
	material := make([]byte, KeyMaterialBytes)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generating key material: %w", err)
	}

	k := &EncryptionKey{Material: material, IsActive: true}
	err := m.pool.QueryRow(ctx,
		`INSERT INTO encryption_keys (material, is_active) VALUES ($1, true) RETURNING id, created_at`,
		material,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// byID fetches a (possibly inactive, not-yet-expired) key for signature
// verification of an older ApiKey.
func (m *Manager) byID(ctx context.Context, id int64) (*EncryptionKey, error) {
	var k EncryptionKey
	err := m.pool.QueryRow(ctx,
		`SELECT id, material, is_active, expired_at, created_at FROM encryption_keys WHERE id = $1`, id,
	).Scan(&k.ID, &k.Material, &k.IsActive, &k.ExpiredAt, &k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting encryption key %d: %w", id, err)
	}
	return &k, nil
}

// hashCredential returns the SHA-256 digest of a raw API key credential, the
// same construction as the teacher's HashAPIKey.
func hashCredential(raw string) []byte {
	h := sha256.Sum256([]byte(raw))
	return h[:]
}
