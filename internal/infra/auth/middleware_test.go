package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

type staticValidator struct {
	claims *domain.CustomClaims
}

func (v *staticValidator) VerifyToken(string) (*domain.CustomClaims, error) {
	if v.claims == nil {
		return nil, errors.New("invalid token")
	}
	return v.claims, nil
}

func TestMiddlewarePopulatesContext(t *testing.T) {
	validator := &staticValidator{claims: &domain.CustomClaims{
		UserID: "op-1",
		Scopes: map[string]bool{"approvals.decide": true},
	}}

	var gotUser string
	var gotScopes map[string]bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r.Context())
		gotScopes = Scopes(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	NewMiddleware(validator, zap.NewNop())(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-1", gotUser)
	assert.True(t, gotScopes["approvals.decide"])
}

func TestMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not be reached")
	})
	mw := NewMiddleware(&staticValidator{}, zap.NewNop())(next)

	// Без заголовка
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// С невалидным токеном
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	serve := func(scopes map[string]bool) int {
		validator := &staticValidator{claims: &domain.CustomClaims{UserID: "op-1", Scopes: scopes}}
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		chain := NewMiddleware(validator, zap.NewNop())(
			RequireScope("approvals.decide", zap.NewNop())(next))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		chain.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve(map[string]bool{"approvals.decide": true}))
	// admin покрывает любой скоуп
	assert.Equal(t, http.StatusNoContent, serve(map[string]bool{"admin": true}))
	assert.Equal(t, http.StatusForbidden, serve(map[string]bool{"audit.read": true}))
	assert.Equal(t, http.StatusForbidden, serve(nil))
}
