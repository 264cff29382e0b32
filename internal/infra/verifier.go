// README: Identity provider contract; verifiers turn a bearer token into a caller.
package infra

import (
	"context"
	"errors"

	"campuspool/internal/types"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier verifies a raw bearer token and returns the identity it carries.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (types.Caller, error)
}

// callerFromClaims reads the role and verification claims shared by every
// provider. A missing role defaults to rider; a missing verification status to unverified.
func callerFromClaims(subject string, claims map[string]interface{}) (types.Caller, error) {
	if subject == "" {
		return types.Caller{}, ErrInvalidToken
	}
	c := types.Caller{ID: types.ID(subject), Role: types.RoleRider, Verification: types.VerificationNone}
	if v, ok := claims["role"].(string); ok && v != "" {
		role := types.Role(v)
		if !role.Valid() {
			return types.Caller{}, ErrInvalidToken
		}
		c.Role = role
	}
	if v, ok := claims["verification_status"].(string); ok && v != "" {
		c.Verification = types.Verification(v)
	}
	return c, nil
}
