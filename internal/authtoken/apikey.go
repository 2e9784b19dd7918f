package authtoken

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidAPIKey is returned when a raw credential fails lookup or
// signature verification.
var ErrInvalidAPIKey = errors.New("invalid api key")

// credentialBytes is the size of the random credential issued to callers.
const credentialBytes = 32

// ApiKey mirrors the api_keys table.
type ApiKey struct {
	ID            int64
	UserID        int64
	EncryptionKeyID int64
	CreatedAt     time.Time
}

// IssuedAPIKey is returned on issuance; Raw is shown to the caller exactly
// once and never stored.
type IssuedAPIKey struct {
	ApiKey
	Raw string
}

// Authenticator issues and verifies ApiKeys, backed by a Manager for the
// signing key and a pool for the api_keys table.
type Authenticator struct {
	pool *pgxpool.Pool
	keys *Manager
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(pool *pgxpool.Pool, keys *Manager) *Authenticator {
	return &Authenticator{pool: pool, keys: keys}
}

// Issue generates a new random credential, signs it with the active
// encryption key (HMAC-SHA256), and stores the credential hash + signature.
func (a *Authenticator) Issue(ctx context.Context, userID int64) (*IssuedAPIKey, error) {
	active := a.keys.Active()
	if active == nil {
		return nil, fmt.Errorf("issuing api key: %w", errors.New("no active encryption key"))
	}

	raw := make([]byte, credentialBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating api key credential: %w", err)
	}
	rawEncoded := base64.RawURLEncoding.EncodeToString(raw)

	credentialHash := hashCredential(rawEncoded)
	signature := sign(active.Material, credentialHash)

	k := ApiKey{UserID: userID, EncryptionKeyID: active.ID}
	err := a.pool.QueryRow(ctx, `
		INSERT INTO api_keys (user_id, key_id, key_credential, key_signature)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		userID, active.ID, credentialHash, signature,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("storing api key for user %d: %w", userID, err)
	}

	return &IssuedAPIKey{ApiKey: k, Raw: rawEncoded}, nil
}

// Authenticate hashes the raw credential, looks it up, and verifies its
// signature against the encryption key it was issued under (which may since
// have been rotated out of active use but not yet expired).
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*ApiKey, error) {
	if raw == "" {
		return nil, ErrInvalidAPIKey
	}

	credentialHash := hashCredential(raw)

	var k ApiKey
	var signature []byte
	var keyExpiredAt *time.Time
	err := a.pool.QueryRow(ctx, `
		SELECT ak.id, ak.user_id, ak.key_id, ak.created_at, ak.key_signature, ek.expired_at
		FROM api_keys ak
		JOIN encryption_keys ek ON ek.id = ak.key_id
		WHERE ak.key_credential = $1`,
		credentialHash,
	).Scan(&k.ID, &k.UserID, &k.EncryptionKeyID, &k.CreatedAt, &signature, &keyExpiredAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("looking up api key: %w", err)
	}

	if keyExpiredAt != nil && keyExpiredAt.Before(time.Now()) {
		return nil, fmt.Errorf("signing key for api key %d expired at %s: %w", k.ID, keyExpiredAt, ErrInvalidAPIKey)
	}

	signingKey, err := a.keys.byID(ctx, k.EncryptionKeyID)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal(signature, sign(signingKey.Material, credentialHash)) {
		return nil, ErrInvalidAPIKey
	}

	return &k, nil
}

func sign(material, payload []byte) []byte {
	mac := hmac.New(sha256.New, material)
	mac.Write(payload)
	return mac.Sum(nil)
}
