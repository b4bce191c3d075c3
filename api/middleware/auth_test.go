package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer"}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func serveWith(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type expiredVerifier struct{}

func (expiredVerifier) Verify(string) (*auth.AccessTokenClaims, error) {
	return nil, fmt.Errorf("%w: exp", auth.ErrTokenExpired)
}

func TestAuthRejects(t *testing.T) {
	handler := Auth(auth.NewVerifier(testJWT), nil)(okHandler())
	cases := []struct {
		name          string
		authorization string
		challenge     string
	}{
		{name: "no header", challenge: `Bearer realm="storefront"`},
		{name: "wrong scheme", authorization: "Basic dXNlcjpwYXNz", challenge: `Bearer realm="storefront"`},
		{name: "bare token", authorization: mintTestToken(t, uuid.New(), enums.UserRoleCustomer), challenge: `Bearer realm="storefront"`},
		{name: "empty bearer", authorization: "Bearer   ", challenge: `Bearer realm="storefront"`},
		{name: "garbage token", authorization: "Bearer invalid", challenge: `Bearer realm="storefront", error="invalid_token"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveWith(handler, tc.authorization)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.challenge, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestAuthReportsExpiry(t *testing.T) {
	rec := serveWith(Auth(expiredVerifier{}, nil)(okHandler()), "Bearer whatever")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")
}

func TestAuthSeedsPrincipal(t *testing.T) {
	userID := uuid.New()
	var captured auth.Principal
	var found bool
	handler := Auth(auth.NewVerifier(testJWT), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, found = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := serveWith(handler, "bearer "+mintTestToken(t, userID, enums.UserRoleCustomer))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	assert.Equal(t, userID, captured.UserID)
	assert.Equal(t, enums.UserRoleCustomer, captured.Role)
}

func TestRequireRole(t *testing.T) {
	chain := Auth(auth.NewVerifier(testJWT), nil)(RequireRole(nil, enums.UserRoleAdmin)(okHandler()))

	assert.Equal(t, http.StatusOK, serveWith(chain, "Bearer "+mintTestToken(t, uuid.New(), enums.UserRoleAdmin)).Code)
	assert.Equal(t, http.StatusForbidden, serveWith(chain, "Bearer "+mintTestToken(t, uuid.New(), enums.UserRoleCustomer)).Code)
	assert.Equal(t, http.StatusUnauthorized, serveWith(RequireRole(nil, enums.UserRoleAdmin)(okHandler()), "").Code)

	either := Auth(auth.NewVerifier(testJWT), nil)(RequireRole(nil, enums.UserRoleAdmin, enums.UserRoleCustomer)(okHandler()))
	assert.Equal(t, http.StatusOK, serveWith(either, "Bearer "+mintTestToken(t, uuid.New(), enums.UserRoleCustomer)).Code)
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	issuer, err := auth.NewIssuer(testJWT, time.Hour)
	require.NoError(t, err)
	token, err := issuer.Mint(auth.AccessTokenPayload{UserID: userID, Email: "buyer@example.com", Role: role})
	require.NoError(t, err)
	return token
}
