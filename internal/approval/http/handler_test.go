package approvalhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/achievehub/achievehub/internal/achievement"
	"github.com/achievehub/achievehub/internal/approval"
	"github.com/achievehub/achievehub/internal/audit"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/internal/stats"
	"github.com/achievehub/achievehub/internal/store/memory"
	"github.com/achievehub/achievehub/jobs"
)

var (
	auditor   = rbac.NewActor(1, rbac.RoleAdministrator)
	publisher = rbac.NewActor(2, rbac.RolePublisher)
	created   = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
)

type stubEnqueuer struct {
	payloads []jobs.BatchApprovePayload
	keys     map[string]bool
	err      error
}

func (s *stubEnqueuer) EnqueueBatchApprove(ctx context.Context, payload jobs.BatchApprovePayload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if payload.RequestKey != "" {
		if s.keys[payload.RequestKey] {
			return "", jobs.ErrDuplicateBatch
		}
		if s.keys == nil {
			s.keys = map[string]bool{}
		}
		s.keys[payload.RequestKey] = true
	}
	s.payloads = append(s.payloads, payload)
	return "task-1", nil
}

type server struct {
	router  http.Handler
	store   *memory.Store
	records *audit.MemoryStore
}

func newServer(t *testing.T, opts ...Option) *server {
	t.Helper()
	records := audit.NewMemoryStore()
	store := memory.New(records)
	evaluator := rbac.NewEvaluator(rbac.DefaultCatalog(), store)
	trail := audit.NewTrail(records)
	h := NewHandler(nil,
		approval.NewWorkflow(store, trail),
		achievement.NewService(store, evaluator),
		stats.NewView(store, trail),
		rbac.Middleware{Evaluator: evaluator},
		opts...)
	r := chi.NewRouter()
	r.Route("/api/approvals", h.MountRoutes)
	return &server{router: r, store: store, records: records}
}

func (s *server) seed(id int64, name string, state achievement.AuditState) {
	s.store.Put(achievement.Achievement{
		ID:          id,
		OwnerID:     publisher.ID,
		Name:        name,
		Category:    "research",
		AuditState:  state,
		Active:      true,
		SubmittedAt: created,
		CreatedAt:   created.Add(time.Duration(id) * time.Minute),
	})
}

func (s *server) do(method, path, body string, actor *rbac.Actor, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if actor != nil {
		req = req.WithContext(rbac.ContextWithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *server) state(t *testing.T, id int64) achievement.AuditState {
	t.Helper()
	a, err := s.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.AuditState
}

func TestApproveEndpoint(t *testing.T) {
	s := newServer(t)
	s.seed(1, "Hackathon winner", achievement.StatePending)

	rr := s.do(http.MethodPost, "/api/approvals/1/approve", "", &auditor)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, achievement.StateApproved, s.state(t, 1))
	require.Equal(t, 1, s.records.Len())

	rr = s.do(http.MethodPost, "/api/approvals/1/approve", "", &auditor)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")
	require.Equal(t, 1, s.records.Len())
}

func TestApproveEndpointErrors(t *testing.T) {
	s := newServer(t)
	s.seed(1, "Hackathon winner", achievement.StatePending)

	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/approvals/1/approve", "", nil).Code)
	require.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/approvals/1/approve", "", &publisher).Code)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/approvals/abc/approve", "", &auditor).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/approvals/99/approve", "", &auditor).Code)
	require.Equal(t, achievement.StatePending, s.state(t, 1))
}

func TestRejectEndpoint(t *testing.T) {
	s := newServer(t)
	s.seed(1, "Hackathon winner", achievement.StatePending)

	rr := s.do(http.MethodPost, "/api/approvals/1/reject", `{"reason":"   "}`, &auditor)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, achievement.StatePending, s.state(t, 1))

	rr = s.do(http.MethodPost, "/api/approvals/1/reject", `{"reason":"missing certificate"}`, &auditor)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, achievement.StateRejected, s.state(t, 1))

	history, err := s.records.QueryByAchievement(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "missing certificate", history[0].Comment)

	rr = s.do(http.MethodPost, "/api/approvals/1/reject", `{"reason":"x","extra":true}`, &auditor)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBatchApproveSync(t *testing.T) {
	s := newServer(t)
	s.seed(1, "A", achievement.StatePending)
	s.seed(2, "B", achievement.StateApproved)
	s.seed(3, "C", achievement.StatePending)

	rr := s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2,3,404]}`, &auditor)
	require.Equal(t, http.StatusOK, rr.Code)

	var body batchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, batchResponse{Requested: 4, Approved: 2}, body)
	require.Equal(t, achievement.StateApproved, s.state(t, 3))

	rr = s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[]}`, &auditor)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[0]}`, &auditor)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBatchApproveQueuesLargeBatches(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	s := newServer(t, WithBatchEnqueuer(enqueuer, 2))
	for id := int64(1); id <= 3; id++ {
		s.seed(id, "bulk", achievement.StatePending)
	}

	rr := s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2,3]}`, &auditor)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var body batchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Queued)
	require.Equal(t, "task-1", body.TaskID)
	require.Len(t, enqueuer.payloads, 1)
	require.Equal(t, auditor.ID, enqueuer.payloads[0].AuditorID)
	require.Equal(t, []int64{1, 2, 3}, enqueuer.payloads[0].IDs)
	// nothing is decided on the request path
	require.Equal(t, achievement.StatePending, s.state(t, 1))

	rr = s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2]}`, &auditor)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, enqueuer.payloads, 1)

	enqueuer.err = errors.New("redis down")
	rr = s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2,3]}`, &auditor)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotContains(t, rr.Body.String(), "redis down")
}

func TestBatchApproveIdempotencyKey(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	s := newServer(t, WithBatchEnqueuer(enqueuer, 1))

	rr := s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2]}`, &auditor, IdempotencyHeader, "nightly-42")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, "nightly-42", enqueuer.payloads[0].RequestKey)

	rr = s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2]}`, &auditor, IdempotencyHeader, "nightly-42")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Len(t, enqueuer.payloads, 1)

	rr = s.do(http.MethodPost, "/api/approvals/batch-approve", `{"ids":[1,2]}`, &auditor, IdempotencyHeader, strings.Repeat("k", 129))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListPendingEndpoint(t *testing.T) {
	s := newServer(t)
	s.seed(1, "Robotics finalist", achievement.StatePending)
	s.seed(2, "Chess champion", achievement.StatePending)
	s.seed(3, "Robotics mentor", achievement.StateApproved)

	rr := s.do(http.MethodGet, "/api/approvals/pending?name=robotics", "", &auditor)
	require.Equal(t, http.StatusOK, rr.Code)

	var body achievement.ListResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, int64(1), body.Items[0].ID)
	require.Equal(t, 1, body.Pagination.Total)

	rr = s.do(http.MethodGet, "/api/approvals/pending?startDate=2024-06-02", "", &auditor)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Items)

	rr = s.do(http.MethodGet, "/api/approvals/pending?startDate=yesterday", "", &auditor)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodGet, "/api/approvals/pending", "", &publisher)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	s := newServer(t)
	s.seed(1, "A", achievement.StatePending)
	s.seed(2, "B", achievement.StatePending)

	rr := s.do(http.MethodGet, "/api/approvals/statistics", "", &auditor)
	require.Equal(t, http.StatusOK, rr.Code)

	var body stats.Statistics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 2, body.PendingCount)
	require.Zero(t, body.RejectionRate)
}
