package model

// Workspace member roles, weakest first.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

var roleRank = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// RoleAtLeast reports whether role grants at least the privileges of min.
// Unknown roles rank below viewer.
func RoleAtLeast(role, min string) bool {
	return roleRank[role] >= roleRank[min]
}

// MaxRole returns the strongest role in the list, or "" when empty.
func MaxRole(roles []string) string {
	best := ""
	for _, r := range roles {
		if roleRank[r] > roleRank[best] {
			best = r
		}
	}
	return best
}
