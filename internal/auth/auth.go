// Package auth implements admin-key authorization for the registry's
// write surfaces. The key table is built once at startup from config and
// never mutated afterward.
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/certledger/certverify/internal/config"
)

// Admin describes the holder of an accepted key. IssuerID scopes imports
// and registrations to one issuer; "*" means all issuers.
type Admin struct {
	Role     string `json:"role"`
	IssuerID string `json:"issuer_id"`
}

// Keyring is an immutable API-key lookup table.
type Keyring struct {
	keys map[string]Admin
}

// NewKeyring builds the table from config. Entries without a key are
// dropped; role defaults to "admin" and issuer scope to "*". An empty
// keyring denies every admin request.
func NewKeyring(keys []config.AdminKey) *Keyring {
	m := make(map[string]Admin, len(keys))
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		admin := Admin{Role: k.Role, IssuerID: k.IssuerID}
		if admin.Role == "" {
			admin.Role = "admin"
		}
		if admin.IssuerID == "" {
			admin.IssuerID = "*"
		}
		m[k.Key] = admin
	}
	return &Keyring{keys: m}
}

// Lookup resolves an API key to its admin entry.
func (k *Keyring) Lookup(key string) (Admin, bool) {
	a, ok := k.keys[key]
	return a, ok
}

type ctxKey struct{}

// FromContext returns the Admin the middleware authenticated.
func FromContext(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(ctxKey{}).(Admin)
	return a, ok
}

// RequireAdmin is chi middleware enforcing a valid X-API-Key header and
// attaching the resolved Admin to the request context.
func (k *Keyring) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			unauthorized(w, "missing X-API-Key")
			return
		}
		admin, ok := k.Lookup(key)
		if !ok {
			zap.L().Warn("rejected admin request", zap.String("path", r.URL.Path))
			unauthorized(w, "invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, admin)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
