package auth

import (
	"testing"
	"time"

	"ticketpay/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := &config.JWTConfig{AccessSecret: "s3cret", AccessExpiry: time.Minute, Issuer: "ticketpay"}
	tok, err := GenerateAccessToken(cfg, 42, "ADMIN")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := &config.JWTConfig{AccessSecret: "s3cret", AccessExpiry: time.Minute, Issuer: "ticketpay"}

	_, err := ParseAccessToken(cfg, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := &config.JWTConfig{AccessSecret: "different", AccessExpiry: time.Minute}
	tok, err := GenerateAccessToken(other, 1, "CUSTOMER")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := &config.JWTConfig{AccessSecret: "s3cret", AccessExpiry: -time.Minute}
	tok, err = GenerateAccessToken(expired, 1, "CUSTOMER")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	anon, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "CUSTOMER"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, anon)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
