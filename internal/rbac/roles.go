package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleClient = "client"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsValidRole(role string) bool {
	switch role {
	case RoleClient, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// Allows reports whether role may act where any of allowed is accepted.
// Admin is always allowed.
func Allows(role string, allowed ...string) bool {
	if IsAdmin(role) {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// SameOrg reports whether a caller in callerOrg may touch a resource owned by
// resourceOrg.
func SameOrg(role, callerOrg, resourceOrg string) bool {
	return callerOrg == resourceOrg || IsAdmin(role)
}
