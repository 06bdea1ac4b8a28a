package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "rail-inspect")

	tok, err := m.GenerateToken("op-7", RoleOperator, time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "op-7", claims.OperatorID)
	assert.True(t, claims.CanMutate())
}

func TestJWTRejectsExpiredAndForeignIssuer(t *testing.T) {
	m := NewJWTManager("secret", "rail-inspect")

	expired, err := m.GenerateToken("op-7", RoleViewer, -time.Minute)
	require.NoError(t, err)
	_, err = m.ParseToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewJWTManager("secret", "someone-else")
	foreign, err := other.GenerateToken("op-7", RoleOperator, time.Hour)
	require.NoError(t, err)
	_, err = m.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTManager("other-secret", "rail-inspect").ParseToken(expired)
	assert.Error(t, err)
}

func TestViewerCannotMutate(t *testing.T) {
	assert.False(t, (&Claims{Role: RoleViewer}).CanMutate())
	var nilClaims *Claims
	assert.False(t, nilClaims.CanMutate())
}
