package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gear-lending-api/internal/models"
)

func okHandler(t *testing.T, gotUserID *int64, gotRole *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotUserID != nil {
			*gotUserID = UserIDFromContext(r.Context())
		}
		if gotRole != nil {
			*gotRole = RoleFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	m := newTestManager(time.Hour)
	token, err := m.GenerateToken(42, models.RoleStaff)
	require.NoError(t, err)

	t.Run("valid token sets context", func(t *testing.T) {
		var userID int64
		var role string
		h := AuthMiddleware(m)(okHandler(t, &userID, &role))

		req := httptest.NewRequest("GET", "/equipment", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(42), userID)
		assert.Equal(t, models.RoleStaff, role)
	})

	t.Run("missing header", func(t *testing.T) {
		h := AuthMiddleware(m)(okHandler(t, nil, nil))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/equipment", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_AUTH_HEADER")
	})

	t.Run("not bearer", func(t *testing.T) {
		h := AuthMiddleware(m)(okHandler(t, nil, nil))
		req := httptest.NewRequest("GET", "/equipment", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_AUTH_FORMAT")
	})

	t.Run("malformed token", func(t *testing.T) {
		h := AuthMiddleware(m)(okHandler(t, nil, nil))
		req := httptest.NewRequest("GET", "/equipment", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := newTestManager(-time.Minute).GenerateToken(42, models.RoleStaff)
		require.NoError(t, err)

		h := AuthMiddleware(m)(okHandler(t, nil, nil))
		req := httptest.NewRequest("GET", "/equipment", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTManager("another-secret-also-16-chars", "gear-lending-api", "gear-lending-api", time.Hour).
			GenerateToken(42, models.RoleStaff)
		require.NoError(t, err)

		h := AuthMiddleware(m)(okHandler(t, nil, nil))
		req := httptest.NewRequest("GET", "/equipment", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMustTier(t *testing.T) {
	m := newTestManager(time.Hour)

	serve := func(role string, tier string) *httptest.ResponseRecorder {
		token, err := m.GenerateToken(7, role)
		require.NoError(t, err)

		h := AuthMiddleware(m)(MustTier(tier)(okHandler(t, nil, nil)))
		req := httptest.NewRequest("GET", "/reservations/approve", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve(models.RoleStaff, models.TierStaff).Code)
	assert.Equal(t, http.StatusOK, serve(models.RoleAdmin, models.TierStaff).Code)
	assert.Equal(t, http.StatusForbidden, serve(models.RoleStudent, models.TierStaff).Code)
	assert.Equal(t, http.StatusForbidden, serve(models.RoleStaff, models.TierAdmin).Code)
	assert.Equal(t, http.StatusOK, serve(models.RoleLecturer, models.TierUser).Code)
}

func TestMustTierWithoutClaims(t *testing.T) {
	h := MustTier(models.TierStaff)(okHandler(t, nil, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTHENTICATION_REQUIRED")
}
