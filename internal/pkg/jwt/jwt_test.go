package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("ops", RoleAdmin, secret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, claims.Role)
	require.Equal(t, "ops", claims.Subject)

	_, err = ParseToken(token, []byte("other"))
	require.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("ops", RoleAdmin, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}
