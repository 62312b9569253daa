package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity(signed(t, jwt.MapClaims{
		"sub":                "f3b1",
		"preferred_username": "anna",
		"realm_access":       map[string]interface{}{"roles": []string{"admin", "offline_access"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, "anna", id.Username)
	assert.True(t, id.HasRole("admin"))
	assert.False(t, id.HasRole("organiser"))

	id, err = ParseIdentity(signed(t, jwt.MapClaims{"sub": "f3b1", "roles": []string{"organiser"}}))
	require.NoError(t, err)
	assert.Equal(t, "f3b1", id.Username)
	assert.Equal(t, []string{"organiser"}, id.Roles)
}

func TestParseIdentity_Invalid(t *testing.T) {
	_, err := ParseIdentity("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ParseIdentity("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseIdentity(signed(t, jwt.MapClaims{"name": "anonymous"}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	var seen Identity
	h := Middleware()(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"not admin", "Bearer " + signed(t, jwt.MapClaims{"sub": "bert"}), http.StatusForbidden},
		{"admin", "Bearer " + signed(t, jwt.MapClaims{"sub": "carl", "roles": []string{"admin"}}), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "carl", seen.Username)
}

func TestParseIdentity_SignatureLeftToGateway(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "dora", "roles": []string{"admin"}}).
		SignedString([]byte("some-other-key"))
	require.NoError(t, err)

	id, err := ParseIdentity(token)
	require.NoError(t, err)
	assert.True(t, id.HasRole("admin"))
}
