package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.example.test/auth/v1"
	testAudience = "authenticated"
)

func protectedRouter(verifier TokenVerifier, cfg MiddlewareConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(verifier, cfg))
	router.GET("/protected", func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c.Request.Context())
		if !ok || claims.Subject == "" {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject, "email": claims.Email})
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func serve(router *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareMissingToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	resp := serve(protectedRouter(verifier, MiddlewareConfig{}), "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	resp := serve(protectedRouter(verifier, MiddlewareConfig{}), "/protected", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMiddlewareInvalidToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	badKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokenString := signToken(t, badKey, "test-key", jwt.MapClaims{})

	resp := serve(protectedRouter(verifier, MiddlewareConfig{}), "/protected", "Bearer "+tokenString)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMiddlewareValidToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{"email": "Ana@Example.com"})

	resp := serve(protectedRouter(verifier, MiddlewareConfig{}), "/protected", "Bearer "+tokenString)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "user-123", body["sub"])
	assert.Equal(t, "ana@example.com", body["email"])
}

func TestMiddlewarePublicPath(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	router := protectedRouter(verifier, MiddlewareConfig{PublicPaths: map[string]bool{"/health": true}})
	assert.Equal(t, http.StatusOK, serve(router, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/protected", "").Code)
}

func TestMiddlewareOnAuthenticatedRejects(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{})

	var seen string
	router := protectedRouter(verifier, MiddlewareConfig{
		OnAuthenticated: func(_ *gin.Context, claims *Claims) error {
			seen = claims.Subject
			return errors.New("profile disabled")
		},
	})

	resp := serve(router, "/protected", "Bearer "+tokenString)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "user-123", seen)
}

func TestMiddlewareDisabledInjectsLocalClaims(t *testing.T) {
	resp := serve(protectedRouter(nil, MiddlewareConfig{DisableAuth: true}), "/protected", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "local-dev")
}

func TestMiddlewareNilVerifier(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	resp := serve(protectedRouter(nil, MiddlewareConfig{}), "/protected", "Bearer abc")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestVerifierReadsAppMetadataRole(t *testing.T) {
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{
		"role":         "authenticated",
		"app_metadata": map[string]any{"role": "admin"},
	})

	claims, err := verifier.Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "authenticated", claims.Role)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, []string{testAudience}, claims.Audience)
	assert.False(t, claims.ExpiresAt.IsZero())
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", jwt.MapClaims{"aud": "someone-else"})

	_, err := verifier.Verify(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsEmptyToken(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	_, err := verifier.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewVerifierRequiresIssuer(t *testing.T) {
	_, err := NewVerifier("  ", "", "http://127.0.0.1/jwks")
	assert.Error(t, err)
}

func TestAuthDisabled(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "crm-api")
	t.Setenv("ENV", "production")
	assert.False(t, AuthDisabled())

	t.Setenv("ENV", "local")
	assert.True(t, AuthDisabled())

	t.Setenv("AUTH_DISABLED", "false")
	assert.False(t, AuthDisabled())
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := ExtractBearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = ExtractBearerToken("bearer  xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"Bearer", "Token abc", "", "Bearer   "} {
		_, ok := ExtractBearerToken(header)
		assert.False(t, ok, header)
	}
}

func TestClaimsFromContext(t *testing.T) {
	claims := &Claims{Subject: "user-1"}
	ctx := WithClaims(context.Background(), claims)
	got, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.Subject)

	_, ok = ClaimsFromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsIsAdmin(t *testing.T) {
	var nilClaims *Claims
	assert.False(t, nilClaims.IsAdmin())
	assert.False(t, (&Claims{AppRole: "user"}).IsAdmin())
	assert.True(t, (&Claims{AppRole: "admin"}).IsAdmin())
}

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(testIssuer, "", server.URL)
	require.NoError(t, err)
	return verifier, key
}

// signToken signs a token with default iss/aud/sub/exp claims, overridden by extra.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, extra jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "user-123",
		"exp": now.Add(10 * time.Minute).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	require.NoError(t, err)
	return tokenString
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{
		Keys: []jwk{{Kty: "RSA", Kid: kid, Use: "sig", Alg: "RS256", N: n, E: e}},
	}
}
