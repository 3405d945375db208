package enums

import "slices"

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleFarmer UserRole = "farmer"
	UserRoleStaff  UserRole = "staff"
	UserRoleAdmin  UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleFarmer,
	UserRoleStaff,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	return slices.Contains(validUserRoles, r)
}

// NegotiationActor maps a token role onto the negotiating side it speaks for.
// Admins observe negotiations but never act in them.
func (r UserRole) NegotiationActor() (NegotiationActor, bool) {
	switch r {
	case UserRoleFarmer:
		return ActorFarmer, true
	case UserRoleStaff:
		return ActorStaff, true
	default:
		return "", false
	}
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	return parse("user role", validUserRoles, value)
}
