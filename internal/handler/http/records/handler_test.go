package records_http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"salesconsumer/internal/app/records"
	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	"salesconsumer/internal/infrastructure/database/dbtest"
	"salesconsumer/internal/metrics"
	"salesconsumer/internal/repository/opportunity_repo"
	"salesconsumer/internal/repository/project_repo"
)

type server struct {
	router  chi.Router
	healthy bool
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := dbtest.NewSQLite(t)
	opps := opportunity_repo.NewOpportunityRepository(db.Driver)
	projects := project_repo.NewProjectRepository(db.Driver)

	ctx := context.Background()
	name, amount := "Deal A", 5000.0
	require.NoError(t, opps.InsertTx(ctx, db, &domain.Opportunity{
		Audit:  domain.Audit{EventID: "E1"},
		Name:   &name,
		Amount: &amount,
	}))
	require.NoError(t, opps.InsertTx(ctx, db, &domain.Opportunity{Audit: domain.Audit{EventID: "E2"}}))
	require.NoError(t, projects.InsertTx(ctx, db, &domain.Project{Audit: domain.Audit{EventID: "P1"}, IsActive: true}))

	logger := zaptest.NewLogger(t)
	s := &server{router: chi.NewRouter(), healthy: true}
	s.router.Use(CORS([]string{"http://dashboard.local"}))
	svc := records.NewRecordService(db.DB, opps, projects, logger)
	RegisterRoutes(s.router, svc, func() bool { return s.healthy }, metrics.New().Handler(), logger)
	return s
}

func (s *server) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health").Code)

	s.healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetOpportunity(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/opportunities/E1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp OpportunityResponse
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "E1", resp.EventID)
	require.NotNil(t, resp.Name)
	assert.Equal(t, "Deal A", *resp.Name)
	require.NotNil(t, resp.Amount)
	assert.InDelta(t, 5000.0, *resp.Amount, 1e-9)
	assert.Nil(t, resp.DeletedAt)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/opportunities/missing").Code)
}

func TestListOpportunities_Paging(t *testing.T) {
	s := newServer(t)

	var all []OpportunityResponse
	rec := s.do(http.MethodGet, "/opportunities")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	var page []OpportunityResponse
	rec = s.do(http.MethodGet, "/opportunities?skip=1&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)
	assert.Equal(t, all[1].EventID, page[0].EventID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/opportunities?skip=-1").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/opportunities?limit=abc").Code)
}

func TestDeleteProject(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodDelete, "/projects/P1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProjectResponse
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.DeletedAt)
	assert.True(t, resp.IsActive)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/projects/P1").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/projects/P1").Code)

	var list []ProjectResponse
	rec = s.do(http.MethodGet, "/projects")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestCORS_Preflight(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/projects/P1", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://dashboard.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	req = httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
