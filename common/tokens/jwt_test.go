package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	tg := NewTokenGenerator("secret", time.Hour)

	tok, err := tg.Generate("user-1", RoleAccountAdmin, "client-1", []string{"acct-1", "acct-2"})
	require.NoError(t, err)

	claims, err := tg.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, RoleAccountAdmin, claims.Role)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, []string{"acct-1", "acct-2"}, claims.AccountIDs)
}

func TestGenerate_UnknownRole(t *testing.T) {
	_, err := NewTokenGenerator("secret", time.Hour).Generate("u", "owner", "", nil)
	assert.Error(t, err)
}

func TestValidate_WrongSecret(t *testing.T) {
	tok, err := NewTokenGenerator("secret", time.Hour).Generate("u", RoleSuperAdmin, "", nil)
	require.NoError(t, err)

	_, err = NewTokenGenerator("other", time.Hour).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	claims := Claims{
		UserID: "u",
		Role:   RoleSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenGenerator("secret", time.Hour).Validate(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_RejectsNoneAlg(t *testing.T) {
	claims := Claims{UserID: "u", Role: RoleSuperAdmin, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenGenerator("secret", time.Hour).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	_, err := NewTokenGenerator("secret", time.Hour).Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
