package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken(7, 1, 2, "MANAGER", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, uint(1), claims.TenantID)
	assert.Equal(t, uint(2), claims.OutletID)
	assert.Equal(t, "MANAGER", claims.Role)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	SetSecret("one")
	token, err := GenerateToken(1, 1, 1, "STAFF", time.Hour)
	require.NoError(t, err)

	SetSecret("two")
	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	SetSecret("test-secret")
	token, err := GenerateToken(1, 1, 1, "STAFF", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidatePINFormat(t *testing.T) {
	assert.NoError(t, ValidatePINFormat("1234"))
	assert.NoError(t, ValidatePINFormat("12345678"))
	assert.ErrorIs(t, ValidatePINFormat("123"), ErrInvalidPINFormat)
	assert.ErrorIs(t, ValidatePINFormat("123456789"), ErrInvalidPINFormat)
	assert.ErrorIs(t, ValidatePINFormat("12a4"), ErrInvalidPINFormat)
}

func TestCheckPIN(t *testing.T) {
	hash, err := HashPIN("4321")
	require.NoError(t, err)

	ok, err := CheckPIN(hash, "4321")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPIN(hash, "0000")
	require.NoError(t, err)
	assert.False(t, ok)
}
