package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthToken_RoundTrip(t *testing.T) {
	at, err := NewAuthToken("secret", time.Minute)
	require.NoError(t, err)

	token, exp, err := at.GenerateToken("browser-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	ok, clientID, err := at.VerifyToken(token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "browser-1", clientID)
}

func TestAuthToken_EmptySecret(t *testing.T) {
	_, err := NewAuthToken("", time.Minute)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestAuthToken_Rejects(t *testing.T) {
	at, err := NewAuthToken("secret", time.Minute)
	require.NoError(t, err)
	other, err := NewAuthToken("other", time.Minute)
	require.NoError(t, err)

	foreign, _, err := other.GenerateToken("x")
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"client_id": "x",
		"exp":       time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noClient, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"wrong key": foreign,
		"expired":   expired,
		"no client": noClient,
		"garbage":   "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			ok, _, err := at.VerifyToken(token)
			assert.False(t, ok)
			assert.Error(t, err)
		})
	}

	var nilToken *AuthToken
	_, _, err = nilToken.VerifyToken(foreign)
	assert.Error(t, err)
}
