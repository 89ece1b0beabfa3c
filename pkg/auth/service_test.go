package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-charts/pkg/testhelpers"
)

type mockJWKSClient struct {
	claims *Claims
	err    error
	calls  int
}

func (m *mockJWKSClient) ValidateToken(string) (*Claims, error) {
	m.calls++
	return m.claims, m.err
}

func (m *mockJWKSClient) Close() {}

func requestWithAuth(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/connections/project/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestValidateRequest_ValidToken(t *testing.T) {
	svc := NewAuthService(testhelpers.TestSecret, nil, zap.NewNop())

	claims, token, err := svc.ValidateRequest(requestWithAuth(
		testhelpers.GenerateTestJWTWithBearer(testhelpers.TestSecret, "user-1", "u@example.com")))
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "user-1", claims.Identity())
	assert.Equal(t, "u@example.com", claims.Email)
}

func TestValidateRequest_MissingToken(t *testing.T) {
	svc := NewAuthService(testhelpers.TestSecret, nil, zap.NewNop())

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer   "} {
		_, _, err := svc.ValidateRequest(requestWithAuth(header))
		assert.ErrorIs(t, err, ErrMissingToken, "header %q", header)
	}
}

func TestValidateRequest_InvalidTokens(t *testing.T) {
	svc := NewAuthService(testhelpers.TestSecret, nil, zap.NewNop())

	tests := map[string]string{
		"garbage":      "Bearer not-a-jwt",
		"wrong secret": testhelpers.GenerateTestJWTWithBearer("other-secret", "user-1", ""),
		"expired":      "Bearer " + testhelpers.GenerateExpiredTestJWT(testhelpers.TestSecret, "user-1"),
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.ValidateRequest(requestWithAuth(header))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateToken_NoSecretConfigured(t *testing.T) {
	svc := NewAuthService("", nil, zap.NewNop())

	_, err := svc.ValidateToken(testhelpers.GenerateTestJWT("", "user-1", ""))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_NonHS256UsesJWKS(t *testing.T) {
	jwks := &mockJWKSClient{claims: &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "svc"}}}
	svc := NewAuthService(testhelpers.TestSecret, jwks, zap.NewNop())

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"sub": "svc",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testhelpers.TestSecret))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "svc", claims.Identity())
	assert.Equal(t, 1, jwks.calls)

	jwks.err = errors.New("unauthorized issuer")
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_NonHS256WithoutJWKS(t *testing.T) {
	svc := NewAuthService(testhelpers.TestSecret, nil, zap.NewNop())

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "x"}).
		SignedString([]byte(testhelpers.TestSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
