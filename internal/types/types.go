// README: Common value objects used across modules (identifiers, coordinates, callers).
package types

import "github.com/google/uuid"

type ID string

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// ValidID reports whether v is a well-formed identifier.
func ValidID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

type Verification string

const (
	VerificationNone     Verification = "unverified"
	VerificationPending  Verification = "pending"
	VerificationVerified Verification = "verified"
	VerificationRejected Verification = "rejected"
)

// Caller is the authenticated identity supplied by the identity provider.
type Caller struct {
	ID           ID
	Role         Role
	Verification Verification
}

func (c Caller) IsAdmin() bool    { return c.Role == RoleAdmin }
func (c Caller) IsVerified() bool { return c.Verification == VerificationVerified }
