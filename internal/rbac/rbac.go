// Package rbac holds the role and action model for report access.
package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionEdit   Action = "edit"
	ActionExport Action = "export"
	ActionAdmin  Action = "admin"
)

// Can reports whether a role may perform an action. Editing covers the
// block mutation endpoints (insert, move, resize); export is readable
// output and viewers get it too.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionEdit || action == ActionExport
	case RoleViewer:
		return action == ActionRead || action == ActionExport
	default:
		return false
	}
}

// Normalize maps unknown role strings to the least-privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
