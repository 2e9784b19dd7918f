package httpserver

import (
	"context"
	"net/http"

	"github.com/corvexa/ingestord/internal/authtoken"
)

// Identity is the authenticated caller attached to a request's context by
// Authenticate. Handlers read it via IdentityFromContext rather than
// re-deriving it from headers.
type Identity struct {
	UserID   int64
	APIKeyID int64
}

type identityContextKey struct{}

// ContextWithIdentity returns a copy of ctx carrying id.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the Identity set by Authenticate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// KeyAuthenticator is the subset of *authtoken.Authenticator the middleware
// needs.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*authtoken.ApiKey, error)
}

// Authenticate verifies the X-API-Key header against auth and attaches the
// resulting Identity to the request context. Out of scope per spec.md §1
// ("authentication/authorization... treated as an external collaborator with
// a defined interface only") — this is that interface's HTTP edge, not a
// login/session/OIDC implementation.
func Authenticate(auth KeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "missing X-API-Key header")
				return
			}

			key, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}

			ctx := ContextWithIdentity(r.Context(), Identity{UserID: key.UserID, APIKeyID: key.ID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
