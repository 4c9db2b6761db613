package services

import (
	"slices"
	"strings"

	"github.com/spotseeker/apiserver/types"
)

// DefaultRole is reported for accounts holding no role at all.
const DefaultRole = "user"

var rolePrivilege = map[string]int{
	types.RoleAdmin:       0,
	types.RoleManager:     1,
	types.RoleCoordinator: 2,
	types.RoleUser:        3,
}

// PrimaryRole picks the highest-privilege role: Admin, Manager, Coordinator, User,
// then unknown names alphabetically.
func PrimaryRole(names []string) string {
	if len(names) == 0 {
		return DefaultRole
	}

	sorted := slices.Clone(names)
	slices.SortFunc(sorted, func(a, b string) int {
		pa, aKnown := rolePrivilege[a]
		pb, bKnown := rolePrivilege[b]
		switch {
		case aKnown && bKnown:
			return pa - pb
		case aKnown:
			return -1
		case bKnown:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return sorted[0]
}

// HasRole reports whether role is among names.
func HasRole(names []string, role string) bool {
	return slices.Contains(names, role)
}

// HasManagerRole reports whether names grant access to the manager console.
func HasManagerRole(names []string) bool {
	return HasRole(names, types.RoleAdmin) ||
		HasRole(names, types.RoleManager) ||
		HasRole(names, types.RoleCoordinator)
}
