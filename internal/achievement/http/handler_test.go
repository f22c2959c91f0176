package achievementhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/store/memory"
)

var (
	admin     = rbac.NewActor(1, rbac.RoleAdministrator)
	alice     = rbac.NewActor(2, rbac.RolePublisher)
	bob       = rbac.NewActor(3, rbac.RolePublisher)
	visitor   = rbac.NewActor(4, rbac.RoleGeneralUser)
	createdAt = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
)

func newRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New(nil)
	evaluator := rbac.NewEvaluator(rbac.DefaultCatalog(), store)
	service := achievement.NewService(store, evaluator, achievement.WithClock(func() time.Time { return createdAt }))
	h := NewHandler(nil, service, rbac.Middleware{Evaluator: evaluator})
	r := chi.NewRouter()
	r.Route("/api/achievements", h.MountRoutes)
	return r, store
}

func send(router http.Handler, method, path, body string, actor *rbac.Actor) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if actor != nil {
		req = req.WithContext(rbac.ContextWithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestCreateAndGet(t *testing.T) {
	router, _ := newRouter(t)

	rr := send(router, http.MethodPost, "/api/achievements/", `{"name":" Science fair ","category":"science"}`, &alice)
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[achievement.Achievement](t, rr)
	require.Equal(t, "Science fair", created.Name)
	require.Equal(t, achievement.StatePending, created.AuditState)
	require.Equal(t, alice.ID, created.OwnerID)

	path := "/api/achievements/" + jsonID(created.ID)
	require.Equal(t, http.StatusOK, send(router, http.MethodGet, path, "", &alice).Code)
	require.Equal(t, http.StatusOK, send(router, http.MethodGet, path, "", &admin).Code)
	// unpublished entries are hidden from everyone else
	require.Equal(t, http.StatusNotFound, send(router, http.MethodGet, path, "", &bob).Code)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	router, _ := newRouter(t)

	require.Equal(t, http.StatusBadRequest, send(router, http.MethodPost, "/api/achievements/", `{"name":"","category":"x"}`, &alice).Code)
	require.Equal(t, http.StatusBadRequest, send(router, http.MethodPost, "/api/achievements/", `{"name":`, &alice).Code)
	require.Equal(t, http.StatusForbidden, send(router, http.MethodPost, "/api/achievements/", `{"name":"a","category":"b"}`, &visitor).Code)
	require.Equal(t, http.StatusUnauthorized, send(router, http.MethodPost, "/api/achievements/", `{"name":"a","category":"b"}`, nil).Code)
}

func TestUpdateAndDeleteRespectOwnership(t *testing.T) {
	router, store := newRouter(t)
	store.Put(achievement.Achievement{
		ID: 1, OwnerID: alice.ID, Name: "Debate", Category: "speech",
		AuditState: achievement.StateRejected, Active: true, CreatedAt: createdAt,
	})

	require.Equal(t, http.StatusForbidden, send(router, http.MethodPut, "/api/achievements/1", `{"name":"Mine now","category":"speech"}`, &bob).Code)

	rr := send(router, http.MethodPut, "/api/achievements/1", `{"name":"Debate final","category":"speech"}`, &alice)
	require.Equal(t, http.StatusOK, rr.Code)
	updated := decode[achievement.Achievement](t, rr)
	require.Equal(t, achievement.StatePending, updated.AuditState)
	require.Equal(t, alice.ID, updated.OwnerID)

	require.Equal(t, http.StatusForbidden, send(router, http.MethodDelete, "/api/achievements/1", "", &bob).Code)
	require.Equal(t, http.StatusNoContent, send(router, http.MethodDelete, "/api/achievements/1", "", &alice).Code)
	require.Equal(t, http.StatusNotFound, send(router, http.MethodDelete, "/api/achievements/1", "", &alice).Code)
}

func TestBatchDelete(t *testing.T) {
	router, store := newRouter(t)
	for id := int64(1); id <= 2; id++ {
		store.Put(achievement.Achievement{ID: id, OwnerID: alice.ID, Name: "x", Category: "y", AuditState: achievement.StateApproved, Active: true})
	}

	require.Equal(t, http.StatusForbidden, send(router, http.MethodPost, "/api/achievements/batch-delete", `{"ids":[1]}`, &alice).Code)
	require.Equal(t, http.StatusBadRequest, send(router, http.MethodPost, "/api/achievements/batch-delete", `{"ids":[]}`, &admin).Code)

	rr := send(router, http.MethodPost, "/api/achievements/batch-delete", `{"ids":[1,2,2,9]}`, &admin)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, batchDeleteResponse{Requested: 4, Deleted: 2}, decode[batchDeleteResponse](t, rr))

	a, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, a.Active)
}

func TestSearchAndMine(t *testing.T) {
	router, store := newRouter(t)
	store.Put(achievement.Achievement{ID: 1, OwnerID: alice.ID, Name: "Math olympiad", Category: "math", AuditState: achievement.StateApproved, Active: true, CreatedAt: createdAt})
	store.Put(achievement.Achievement{ID: 2, OwnerID: alice.ID, Name: "Math camp", Category: "math", AuditState: achievement.StatePending, Active: true, CreatedAt: createdAt})
	store.Put(achievement.Achievement{ID: 3, OwnerID: bob.ID, Name: "Art prize", Category: "art", AuditState: achievement.StateApproved, Active: true, CreatedAt: createdAt})

	rr := send(router, http.MethodGet, "/api/achievements/?name=math", "", &visitor)
	require.Equal(t, http.StatusOK, rr.Code)
	result := decode[achievement.ListResult](t, rr)
	require.Len(t, result.Items, 1)
	require.Equal(t, int64(1), result.Items[0].ID)

	rr = send(router, http.MethodGet, "/api/achievements/mine", "", &alice)
	require.Equal(t, http.StatusOK, rr.Code)
	result = decode[achievement.ListResult](t, rr)
	require.Len(t, result.Items, 2)

	rr = send(router, http.MethodGet, "/api/achievements/?startDate=2024-03-01&endDate=2024-01-01", "", &visitor)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
