package domain

import "strings"

// Role is the closed set of roles a principal can hold.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Legacy single-character user type codes from the security file.
const (
	LegacyTypeAdmin = "A"
	LegacyTypeUser  = "U"
)

// RoleFromLegacyCode maps a legacy user type code to a Role. Only an exact
// "A" (padding trimmed) yields ADMIN; "U" and every unknown code is USER.
func RoleFromLegacyCode(code string) Role {
	switch strings.TrimSpace(code) {
	case LegacyTypeAdmin:
		return RoleAdmin
	case LegacyTypeUser:
		return RoleUser
	default:
		return RoleUser
	}
}

// ParseRole parses a role claim. ok is false for anything outside the closed set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	default:
		return "", false
	}
}

// rolePermissions lists the role levels each held role satisfies.
var rolePermissions = map[Role][]Role{
	RoleAdmin: {RoleAdmin, RoleUser},
	RoleUser:  {RoleUser},
}

// RoleSatisfies reports whether a principal holding held passes a check that
// requires required. ADMIN satisfies USER checks; the reverse never holds.
func RoleSatisfies(held, required Role) bool {
	for _, r := range rolePermissions[held] {
		if r == required {
			return true
		}
	}
	return false
}

// Principal is an identity as returned by the credential verifier.
type Principal struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	Enabled      bool   `json:"enabled"`
	Locked       bool   `json:"locked"`
	Expired      bool   `json:"expired"`
}

// CanLogin reports whether the account flags allow a new session.
func (p *Principal) CanLogin() bool {
	return p.Enabled && !p.Locked && !p.Expired
}
