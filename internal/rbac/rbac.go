package rbac

type Role string
type Permission string

const (
	RoleUser   Role = "USER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

const (
	PermViewUsers   Permission = "VIEW_USERS"
	PermManageUsers Permission = "MANAGE_USERS"

	PermCreatePosts    Permission = "CREATE_POSTS"
	PermEditOwnPosts   Permission = "EDIT_OWN_POSTS"
	PermEditAllPosts   Permission = "EDIT_ALL_POSTS"
	PermDeleteOwnPosts Permission = "DELETE_OWN_POSTS"
	PermDeleteAllPosts Permission = "DELETE_ALL_POSTS"

	PermCreateComments    Permission = "CREATE_COMMENTS"
	PermEditOwnComments   Permission = "EDIT_OWN_COMMENTS"
	PermEditAllComments   Permission = "EDIT_ALL_COMMENTS"
	PermDeleteOwnComments Permission = "DELETE_OWN_COMMENTS"
	PermDeleteAllComments Permission = "DELETE_ALL_COMMENTS"
)

// Can reports whether a role holds a permission. An empty or unknown
// role (no session) holds nothing.
func Can(role Role, perm Permission) bool {
	switch role {
	case RoleAdmin:
		switch perm {
		case PermViewUsers, PermManageUsers,
			PermCreatePosts, PermEditOwnPosts, PermEditAllPosts, PermDeleteOwnPosts, PermDeleteAllPosts,
			PermCreateComments, PermEditOwnComments, PermEditAllComments, PermDeleteOwnComments, PermDeleteAllComments:
			return true
		default:
			return false
		}
	case RoleEditor:
		return perm == PermCreatePosts || perm == PermEditOwnPosts || perm == PermDeleteOwnPosts ||
			perm == PermCreateComments || perm == PermEditOwnComments || perm == PermDeleteOwnComments
	case RoleUser:
		return perm == PermCreatePosts ||
			perm == PermCreateComments || perm == PermEditOwnComments || perm == PermDeleteOwnComments
	default:
		return false
	}
}

// CanResource evaluates an ownership-gated action: the ALL variant wins
// outright, otherwise the OWN variant applies only when the caller
// authored the resource. Handlers call this against the stored row's
// author, never against client-supplied identifiers.
func CanResource(role Role, ownPerm, allPerm Permission, isOwner bool) bool {
	if Can(role, allPerm) {
		return true
	}
	return Can(role, ownPerm) && isOwner
}

// Normalize converts a stored role string to a Role without widening
// it. Unknown values stay as they are and hold no permissions.
func Normalize(role string) Role {
	return Role(role)
}
