package domain

import "fmt"

// Role is the closed set of authorization levels, ordered so that a direct
// comparison expresses "at least".
type Role int

const (
	RoleAnonymous Role = iota
	RoleMember
	RoleAdmin
)

const rolePrefix = "ROLE_"

// String renders the role the way it is carried inside token claims.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return rolePrefix + "ADMIN"
	case RoleMember:
		return rolePrefix + "MEMBER"
	default:
		return rolePrefix + "ANONYMOUS"
	}
}

// AtLeast reports whether the role satisfies the given minimum.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole maps a claim string back onto the closed enum. Anything outside
// the known set is rejected rather than defaulted.
func ParseRole(s string) (Role, error) {
	switch s {
	case rolePrefix + "ADMIN":
		return RoleAdmin, nil
	case rolePrefix + "MEMBER":
		return RoleMember, nil
	case rolePrefix + "ANONYMOUS":
		return RoleAnonymous, nil
	default:
		return RoleAnonymous, fmt.Errorf("unknown role %q", s)
	}
}
