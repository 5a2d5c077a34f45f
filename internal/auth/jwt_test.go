package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTokenAcceptsBearerPrefix(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	token, err := NewVerifier("other").GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.GenerateToken("alice", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenMissing(t *testing.T) {
	_, err := NewVerifier("secret").ValidateToken("  ")
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, NewVerifier("").Enabled())
}
