package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCustomer   = "customer"
	RoleAdmin      = "admin"
	RoleFinance    = "finance"
	RoleSuperAdmin = "super_admin"
)

// AdminRoles may manage wallets and carts of other users in their tenant.
var AdminRoles = []string{RoleAdmin, RoleFinance, RoleSuperAdmin}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsAdmin(role string) bool {
	for _, r := range AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}

func IsValid(role string) bool { return role == RoleCustomer || IsAdmin(role) }
