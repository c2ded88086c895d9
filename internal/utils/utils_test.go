package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSessionToken_RoundTrip(t *testing.T) {
	tok, err := NewSessionToken("s3cret", 42, "a@school.test", []string{"Admin"}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken("s3cret", tok.Token)
	require.NoError(t, err)

	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.Equal(t, "a@school.test", claims.Email)
	assert.Equal(t, []string{"Admin"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)
}

func TestSessionToken_Rejections(t *testing.T) {
	good, err := NewSessionToken("s3cret", 1, "x@y.z", nil, time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken("other", good.Token)
	assert.Error(t, err, "wrong secret")

	expired, err := NewSessionToken("s3cret", 1, "x@y.z", nil, -time.Minute)
	require.NoError(t, err)
	_, err = ParseSessionToken("s3cret", expired.Token)
	assert.Error(t, err, "expired")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseSessionToken("s3cret", raw)
	assert.Error(t, err, "alg none")

	_, err = ParseSessionToken("s3cret", "garbage")
	assert.Error(t, err)
}

func TestResetToken(t *testing.T) {
	a, err := NewResetToken(time.Hour)
	require.NoError(t, err)
	b, err := NewResetToken(time.Hour)
	require.NoError(t, err)

	assert.Len(t, a.Raw, 64)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Equal(t, HashToken(a.Raw), a.Hash)
	assert.NotEqual(t, a.Raw, a.Hash)
	assert.False(t, strings.Contains(a.Hash, a.Raw))
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, VerifyPassword(h, "correct horse"))
	assert.False(t, VerifyPassword(h, "wrong"))
	assert.False(t, VerifyPassword("", "anything"))
}
