package rbac

import "strings"

// Role is one of the fixed platform roles.
type Role int

const (
	// RoleGeneralUser may browse and interact with published achievements.
	RoleGeneralUser Role = iota
	// RolePublisher may additionally submit and maintain its own achievements.
	RolePublisher
	// RoleAdministrator is the moderation authority.
	RoleAdministrator
)

// rolePriority is the order used when an actor carries more than one grant.
var rolePriority = []Role{RoleAdministrator, RolePublisher, RoleGeneralUser}

// Rank returns the trust rank of the role (higher is more trusted).
func (r Role) Rank() int {
	return int(r)
}

// Authority returns the authority string issued by the identity provider.
func (r Role) Authority() string {
	switch r {
	case RoleGeneralUser:
		return "ROLE_0"
	case RolePublisher:
		return "ROLE_1"
	case RoleAdministrator:
		return "ROLE_2"
	}
	return ""
}

func (r Role) String() string {
	switch r {
	case RoleGeneralUser:
		return "general_user"
	case RolePublisher:
		return "publisher"
	case RoleAdministrator:
		return "administrator"
	}
	return "unknown"
}

// Valid reports whether r is a declared role.
func (r Role) Valid() bool {
	return r >= RoleGeneralUser && r <= RoleAdministrator
}

// RoleFromAuthority parses an authority string. Unlike the identity provider it
// does not default unknown values to a role.
func RoleFromAuthority(authority string) (Role, bool) {
	switch strings.TrimSpace(strings.ToUpper(authority)) {
	case "ROLE_0":
		return RoleGeneralUser, true
	case "ROLE_1":
		return RolePublisher, true
	case "ROLE_2":
		return RoleAdministrator, true
	}
	return 0, false
}

// Permission is an action token evaluated against a role.
type Permission string

// Known permissions.
const (
	PermRead        Permission = "READ"
	PermSearch      Permission = "SEARCH"
	PermDownload    Permission = "DOWNLOAD"
	PermComment     Permission = "COMMENT"
	PermRate        Permission = "RATE"
	PermCreate      Permission = "CREATE"
	PermUpdateOwn   Permission = "UPDATE_OWN"
	PermUpdateAny   Permission = "UPDATE_ANY"
	PermDeleteOwn   Permission = "DELETE_OWN"
	PermDeleteAny   Permission = "DELETE_ANY"
	PermApprove     Permission = "APPROVE"
	PermManageUsers Permission = "MANAGE_USERS"
	PermManageRoles Permission = "MANAGE_ROLES"
)

// AllPermissions lists every permission the evaluator recognises.
func AllPermissions() []Permission {
	return []Permission{
		PermRead,
		PermSearch,
		PermDownload,
		PermComment,
		PermRate,
		PermCreate,
		PermUpdateOwn,
		PermUpdateAny,
		PermDeleteOwn,
		PermDeleteAny,
		PermApprove,
		PermManageUsers,
		PermManageRoles,
	}
}

// OwnershipScoped reports whether p also requires the actor to own the target.
func (p Permission) OwnershipScoped() bool {
	return p == PermUpdateOwn || p == PermDeleteOwn
}

// Known reports whether p is a recognised token.
func (p Permission) Known() bool {
	for _, known := range AllPermissions() {
		if p == known {
			return true
		}
	}
	return false
}

// Actor describes the authenticated principal making a request.
type Actor struct {
	ID            int64
	Roles         []Role
	Authenticated bool
}

// NewActor builds an authenticated actor with the given grants.
func NewActor(id int64, roles ...Role) Actor {
	return Actor{ID: id, Roles: roles, Authenticated: true}
}

// EffectiveRole picks the single role evaluated for the actor, first match in
// Administrator > Publisher > GeneralUser order. ok is false when the actor
// carries no recognised grant.
func (a Actor) EffectiveRole() (Role, bool) {
	for _, candidate := range rolePriority {
		for _, granted := range a.Roles {
			if granted == candidate {
				return candidate, true
			}
		}
	}
	return 0, false
}
