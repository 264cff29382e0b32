package infra

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspool/internal/types"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "campuspool")
	require.NoError(t, err)

	want := types.Caller{ID: "driver-1", Role: types.RoleDriver, Verification: types.VerificationVerified}
	tok, err := v.Sign(want, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJWTVerifierRejects(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "campuspool")
	require.NoError(t, err)
	other, err := NewJWTVerifier("other", "campuspool")
	require.NoError(t, err)
	wrongIssuer, err := NewJWTVerifier("s3cret", "elsewhere")
	require.NoError(t, err)

	c := types.Caller{ID: "rider-1", Role: types.RoleRider, Verification: types.VerificationVerified}
	expired, err := v.Sign(c, -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Sign(c, time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Sign(c, time.Hour)
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "role": "superuser", "iss": "campuspool", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "x", "iss": "campuspool", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": misissued,
		"unknown role": badRole,
		"alg none":     none,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestCallerFromClaimsDefaults(t *testing.T) {
	c, err := callerFromClaims("u1", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, types.RoleRider, c.Role)
	assert.Equal(t, types.VerificationNone, c.Verification)

	_, err = callerFromClaims("", map[string]interface{}{"role": "driver"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTVerifierNeedsSecret(t *testing.T) {
	_, err := NewJWTVerifier("", "")
	assert.Error(t, err)
}

func TestJWTVerifierRequiresExpiry(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "")
	require.NoError(t, err)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
