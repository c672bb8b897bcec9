package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorTokenRoundTrip(t *testing.T) {
	token, err := GenerateOperatorToken("op-1", "operator", "district-7", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, "operator", claims.Role)
	assert.Equal(t, "district-7", claims.DistrictID)
	assert.Equal(t, AppName, claims.Issuer)
}

func TestValidateTokenRejects(t *testing.T) {
	token, err := GenerateOperatorToken("op-1", "operator", "district-7", "secret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateOperatorToken("op-1", "operator", "district-7", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired, "secret")
	assert.Error(t, err)

	anonymous, err := GenerateOperatorToken("", "operator", "district-7", "secret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(anonymous, "secret")
	assert.Error(t, err)

	_, err = ValidateToken("garbage", "secret")
	assert.Error(t, err)
}
