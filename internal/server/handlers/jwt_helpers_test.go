package handlers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessToken(t *testing.T) {
	cfg := JWTConfig{Secret: []byte("test-secret-key"), AccessTokenTTL: 15 * time.Minute}

	token, expiresAt, err := GenerateAccessToken(cfg, "alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := ValidateAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestGenerateAccessToken_Errors(t *testing.T) {
	_, _, err := GenerateAccessToken(JWTConfig{Secret: []byte("s"), AccessTokenTTL: time.Minute}, "a b")
	assert.Error(t, err)

	_, _, err = GenerateAccessToken(JWTConfig{AccessTokenTTL: time.Minute}, "alice")
	assert.Error(t, err)
}

func TestValidateAccessToken_Invalid(t *testing.T) {
	cfg := JWTConfig{Secret: []byte("test-secret-key"), AccessTokenTTL: time.Minute}

	expired, _, err := GenerateAccessToken(JWTConfig{Secret: cfg.Secret, AccessTokenTTL: -time.Minute}, "alice")
	require.NoError(t, err)

	foreign, _, err := GenerateAccessToken(JWTConfig{Secret: []byte("other"), AccessTokenTTL: time.Minute}, "alice")
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(cfg.Secret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	}).SignedString(cfg.Secret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.token"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
		{name: "alg none", token: noneAlg},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "no expiry", token: noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAccessToken(cfg, tt.token)
			assert.Error(t, err)
		})
	}
}
