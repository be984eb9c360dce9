package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermSlotRead       Permission = "slot:read"
	PermSlotManage     Permission = "slot:manage"
	PermDataRead       Permission = "data:read"
	PermAlertAck       Permission = "alert:ack"
	PermControlOperate Permission = "control:operate"
	PermUserManage     Permission = "user:manage"
	PermAuditRead      Permission = "audit:read"
	PermSystemAdmin    Permission = "system:admin"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermSlotRead,
		PermDataRead,
		PermAlertAck,
	},
	RoleOperator: {
		PermSlotRead,
		PermDataRead,
		PermAlertAck,
		PermControlOperate,
	},
	RoleAdmin: {
		PermSlotRead,
		PermSlotManage,
		PermDataRead,
		PermAlertAck,
		PermControlOperate,
		PermUserManage,
		PermAuditRead,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to a role,
// or nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
