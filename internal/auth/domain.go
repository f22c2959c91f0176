package auth

import (
	"time"

	"github.com/achievehub/achievehub/internal/rbac"
)

// User represents an account able to log in.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	// Authorities are the role strings issued to the user, e.g. "ROLE_1".
	Authorities []string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actor converts the user into the principal evaluated by rbac. Unknown
// authorities are dropped rather than mapped to a default role.
func (u User) Actor() rbac.Actor {
	return actorFor(u.ID, u.Authorities)
}

func actorFor(id int64, authorities []string) rbac.Actor {
	roles := make([]rbac.Role, 0, len(authorities))
	for _, authority := range authorities {
		if role, ok := rbac.RoleFromAuthority(authority); ok {
			roles = append(roles, role)
		}
	}
	return rbac.NewActor(id, roles...)
}
