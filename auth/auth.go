// Package auth resolves the tenant of each API request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/invoice-engine/httpx"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const tenantCtxKey = ctxKey("tenantID")

// TenantHeader may carry the tenant in development mode only.
const TenantHeader = "X-Tenant-ID"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrNoTenant     = errors.New("token carries no tenant_id claim")
)

// Claims are the JWT claims the API understands.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// WithTenant stores the tenant id in ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey, tenantID)
}

// TenantFromContext extracts the tenant id set by the middleware.
func TenantFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantCtxKey).(string)
	return v, ok && v != ""
}

// Authenticator validates HS256 tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	// AllowHeader accepts X-Tenant-ID without a token. Development only.
	AllowHeader bool
}

func NewAuthenticator(secret string, allowHeader bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), AllowHeader: allowHeader}
}

// Issue signs a token for tenantID. Used by the CLI and tests.
func (a *Authenticator) Issue(tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a raw token and returns its tenant.
func (a *Authenticator) Parse(raw string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return "", ErrNoTenant
	}
	return claims.TenantID, nil
}

func (a *Authenticator) tenant(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return a.Parse(strings.TrimSpace(token))
	}
	if a.AllowHeader {
		if t := strings.TrimSpace(r.Header.Get(TenantHeader)); t != "" {
			return t, nil
		}
	}
	return "", ErrMissingToken
}

// RequireTenant rejects requests without a valid tenant with a JSON 401.
func (a *Authenticator) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := a.tenant(r)
		if err != nil {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
	})
}
