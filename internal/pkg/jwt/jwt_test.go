package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("sess-1", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "sess-1", claims.SessionID)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("sess-1", []byte("a"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("b"))
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken("sess-1", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}
