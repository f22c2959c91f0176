package rbac

// Catalog maps roles to the permissions they hold. Administrator is not listed:
// it is granted every known permission by the evaluator.
type Catalog map[Role]map[Permission]struct{}

// DefaultCatalog returns the built-in role table.
func DefaultCatalog() Catalog {
	interact := []Permission{PermRead, PermSearch, PermDownload, PermComment, PermRate}
	publish := append(append([]Permission{}, interact...), PermCreate, PermUpdateOwn, PermDeleteOwn)
	return Catalog{
		RoleGeneralUser: permissionSet(interact...),
		RolePublisher:   permissionSet(publish...),
	}
}

// Allows reports whether the table grants perm to role, ignoring ownership.
func (c Catalog) Allows(role Role, perm Permission) bool {
	if role == RoleAdministrator {
		return perm.Known()
	}
	set, ok := c[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// Permissions returns the permissions granted to role in declaration order.
func (c Catalog) Permissions(role Role) []Permission {
	var out []Permission
	for _, perm := range AllPermissions() {
		if c.Allows(role, perm) {
			out = append(out, perm)
		}
	}
	return out
}

func permissionSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
