package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/store"
	"go.uber.org/zap"
)

type contextKey string

const (
	tenantContextKey = contextKey("tenant")
	tenantHolderKey  = contextKey("tenant_holder")
)

// tenantHolder lets middleware that runs before authentication see the
// tenant once the request has been handled.
type tenantHolder struct {
	tenant *domain.Tenant
}

func withTenantHolder(ctx context.Context) context.Context {
	if _, ok := ctx.Value(tenantHolderKey).(*tenantHolder); ok {
		return ctx
	}
	return context.WithValue(ctx, tenantHolderKey, &tenantHolder{})
}

func TenantFromContext(ctx context.Context) *domain.Tenant {
	if t, ok := ctx.Value(tenantContextKey).(*domain.Tenant); ok {
		return t
	}
	if h, ok := ctx.Value(tenantHolderKey).(*tenantHolder); ok {
		return h.tenant
	}
	return nil
}

// WithTenant returns a context carrying the authenticated tenant.
func WithTenant(ctx context.Context, t *domain.Tenant) context.Context {
	if h, ok := ctx.Value(tenantHolderKey).(*tenantHolder); ok {
		h.tenant = t
	}
	return context.WithValue(ctx, tenantContextKey, t)
}

func APIKeyAuth(tenantStore domain.TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tenant, err := tenantStore.GetByAPIKeyHash(r.Context(), HashAPIKey(parts[1]))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				LoggerFromContext(r.Context()).Error("tenant lookup failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

// HashAPIKey returns the hex SHA-256 of an API key as stored on the tenant.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
