package shared

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type tenantContextKey struct{}

// ContextWithTenant stores the tenant id in context.
func ContextWithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantContextKey{}).(uuid.UUID)
	return id, ok
}

// TenantResolver verifies tenant API keys against the tenants table.
type TenantResolver struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTenantResolver constructs a TenantResolver.
func NewTenantResolver(pool *pgxpool.Pool, logger *slog.Logger) *TenantResolver {
	return &TenantResolver{pool: pool, logger: logger}
}

// Resolve validates "tenantID:secret" credentials and returns the tenant id.
func (t *TenantResolver) Resolve(ctx context.Context, apiKey string) (uuid.UUID, error) {
	idPart, secret, ok := strings.Cut(apiKey, ":")
	if !ok {
		return uuid.Nil, ErrInvalidAPIKey
	}
	tenantID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, ErrInvalidAPIKey
	}
	var hash string
	err = t.pool.QueryRow(ctx,
		`SELECT api_key_hash FROM tenants WHERE id=$1 AND is_active`, tenantID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrInvalidAPIKey
		}
		return uuid.Nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return uuid.Nil, ErrInvalidAPIKey
	}
	return tenantID, nil
}

// Middleware authenticates requests via the X-API-Key header and stores
// the tenant id in the request context.
func (t *TenantResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		tenantID, err := t.Resolve(r.Context(), key)
		if err != nil {
			if !errors.Is(err, ErrInvalidAPIKey) && t.logger != nil {
				t.logger.Error("resolve tenant", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), tenantID)))
	})
}
