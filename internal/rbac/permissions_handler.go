package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/achievehub/achievehub/internal/platform/httpx"
)

// PermissionsHandler exposes the caller's effective permissions.
type PermissionsHandler struct {
	evaluator *Evaluator
	rbac      Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(evaluator *Evaluator, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{evaluator: evaluator, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/", h.listPermissions)
	})
}

type permissionsResponse struct {
	ActorID     int64        `json:"actor_id"`
	Role        string       `json:"role"`
	Permissions []Permission `json:"permissions"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	resp := permissionsResponse{ActorID: actor.ID, Role: "none", Permissions: []Permission{}}
	if role, ok := actor.EffectiveRole(); ok {
		resp.Role = role.String()
	}
	if perms := h.evaluator.EffectivePermissions(actor); perms != nil {
		resp.Permissions = perms
	}
	httpx.JSON(w, http.StatusOK, resp)
}
