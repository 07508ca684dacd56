package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTenant() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ := TenantFromContext(r.Context())
		_, _ = w.Write([]byte(tenant))
	})
}

func TestRequireTenantWithToken(t *testing.T) {
	a := NewAuthenticator("secret", false)
	token, err := a.Issue("acme", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.RequireTenant(echoTenant()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", w.Body.String())
}

func TestRequireTenantRejects(t *testing.T) {
	a := NewAuthenticator("secret", false)
	other := NewAuthenticator("other", false)
	foreign, err := other.Issue("acme", time.Hour)
	require.NoError(t, err)
	expired, err := a.Issue("acme", -time.Minute)
	require.NoError(t, err)
	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header map[string]string
	}{
		{"no credentials", nil},
		{"wrong secret", map[string]string{"Authorization": "Bearer " + foreign}},
		{"expired", map[string]string{"Authorization": "Bearer " + expired}},
		{"no tenant claim", map[string]string{"Authorization": "Bearer " + noTenant}},
		{"header outside dev", map[string]string{TenantHeader: "acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			a.RequireTenant(echoTenant()).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
		})
	}
}

func TestRequireTenantDevHeader(t *testing.T) {
	a := NewAuthenticator("secret", true)
	req := httptest.NewRequest(http.MethodGet, "/invoices", nil)
	req.Header.Set(TenantHeader, "acme")
	w := httptest.NewRecorder()
	a.RequireTenant(echoTenant()).ServeHTTP(w, req)
	assert.Equal(t, "acme", w.Body.String())
}
