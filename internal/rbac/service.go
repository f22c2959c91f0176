package rbac

import (
	"context"
)

// OwnerLookup resolves the owner of a governed resource.
type OwnerLookup interface {
	OwnerID(ctx context.Context, resourceID int64) (int64, error)
}

// Target identifies what a permission is evaluated against. The zero value is
// a resource-less check.
type Target struct {
	ResourceID int64
	OwnerID    int64
	ownerKnown bool
}

// NoTarget is used for checks that are not tied to a resource.
var NoTarget = Target{}

// OwnedBy targets a resource whose owner the caller already knows.
func OwnedBy(resourceID, ownerID int64) Target {
	return Target{ResourceID: resourceID, OwnerID: ownerID, ownerKnown: true}
}

// Resource targets a resource whose owner must be looked up.
func Resource(resourceID int64) Target {
	return Target{ResourceID: resourceID}
}

// Evaluator decides whether an actor may perform an action.
type Evaluator struct {
	catalog Catalog
	owners  OwnerLookup
}

// NewEvaluator constructs an Evaluator. owners may be nil, in which case
// ownership-scoped checks without a known owner are denied.
func NewEvaluator(catalog Catalog, owners OwnerLookup) *Evaluator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Evaluator{catalog: catalog, owners: owners}
}

// Evaluate reports whether actor may perform perm on target. It never fails:
// every ambiguity resolves to a denial.
func (e *Evaluator) Evaluate(ctx context.Context, actor Actor, perm Permission, target Target) bool {
	if e == nil || !actor.Authenticated {
		return false
	}
	if !perm.Known() {
		return false
	}
	role, ok := actor.EffectiveRole()
	if !ok {
		return false
	}
	if role == RoleAdministrator {
		return true
	}
	if !e.catalog.Allows(role, perm) {
		return false
	}
	if !perm.OwnershipScoped() {
		return true
	}
	owner, ok := e.resolveOwner(ctx, target)
	if !ok {
		return false
	}
	return owner == actor.ID
}

// EffectivePermissions lists the role-level permissions of the actor. Ownership
// scoped entries still need a per-resource check.
func (e *Evaluator) EffectivePermissions(actor Actor) []Permission {
	if e == nil || !actor.Authenticated {
		return nil
	}
	role, ok := actor.EffectiveRole()
	if !ok {
		return nil
	}
	return e.catalog.Permissions(role)
}

func (e *Evaluator) resolveOwner(ctx context.Context, target Target) (int64, bool) {
	if target.ownerKnown {
		return target.OwnerID, true
	}
	if target.ResourceID == 0 || e.owners == nil {
		return 0, false
	}
	owner, err := e.owners.OwnerID(ctx, target.ResourceID)
	if err != nil {
		return 0, false
	}
	return owner, true
}
