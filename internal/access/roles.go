package access

// Built-in role identifiers stored on the user record.
const (
	RoleSuperAdmin  = "superadmin"
	RoleBranchAdmin = "branch-admin"
	RoleFrontDesk   = "front-desk"
	// RoleCustom defers to the aggregated custom-role permissions.
	RoleCustom = "custom"
)

// BuiltinRoles lists the fixed roles in precedence order.
func BuiltinRoles() []string {
	return []string{RoleSuperAdmin, RoleBranchAdmin, RoleFrontDesk}
}

// IsValidRole reports whether role can be stored on a user.
func IsValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleBranchAdmin, RoleFrontDesk, RoleCustom:
		return true
	}
	return false
}

// Branch admins manage everything except cross-branch administration.
var branchAdminRestricted = []string{ModuleUsers, ModuleBranches, ModuleSettings}

// Front desk works the daily operations pages only; delete is limited to reservations.
var frontDeskAllowed = []string{ModuleDashboard, ModuleReservations, ModuleRooms, ModuleGuests, ModuleBilling}

// builtinMap returns the static permission map for a built-in role.
func builtinMap(role string) (PermissionMap, bool) {
	switch role {
	case RoleSuperAdmin:
		all := grantAll
		return PermissionMap{Default: &all}, true
	case RoleBranchAdmin:
		all := grantAll
		modules := make(map[string]Grant, len(branchAdminRestricted))
		for _, m := range branchAdminRestricted {
			modules[m] = grantNone
		}
		return PermissionMap{Default: &all, Modules: modules}, true
	case RoleFrontDesk:
		modules := make(map[string]Grant, len(frontDeskAllowed))
		for _, m := range frontDeskAllowed {
			modules[m] = grantReadWrite
		}
		modules[ModuleReservations] = grantAll
		return PermissionMap{Modules: modules}, true
	}
	return PermissionMap{}, false
}
