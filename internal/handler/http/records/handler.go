package records_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"salesconsumer/internal/app/records"
	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
)

type RecordHandler struct {
	service records.RecordService
	logger  *zap.Logger
}

func NewRecordHandler(s records.RecordService, l *zap.Logger) *RecordHandler {
	return &RecordHandler{service: s, logger: l}
}

type OpportunityResponse struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	Name              *string         `json:"name"`
	Stage             *string         `json:"stage"`
	Amount            *float64        `json:"amount"`
	Probability       *float64        `json:"probability"`
	ExpectedCloseDate *string         `json:"expected_close_date"`
	AccountID         *string         `json:"account_id"`
	OwnerID           *string         `json:"owner_id"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	DeletedAt         *string         `json:"deleted_at,omitempty"`
}

type ProjectResponse struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Name      *string         `json:"name"`
	Status    *string         `json:"status"`
	StartDate *string         `json:"start_date"`
	EndDate   *string         `json:"end_date"`
	Budget    *float64        `json:"budget"`
	IsActive  bool            `json:"is_active"`
	ManagerID *string         `json:"manager_id"`
	ClientID  *string         `json:"client_id"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	DeletedAt *string         `json:"deleted_at,omitempty"`
}

func (h *RecordHandler) ListOpportunitiesHandler(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := h.page(w, r)
	if !ok {
		return
	}

	opps, err := h.service.ListOpportunities(r.Context(), skip, limit)
	if err != nil {
		h.logger.Error("Failed to list opportunities", zap.Int("skip", skip), zap.Int("limit", limit), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]OpportunityResponse, 0, len(opps))
	for _, o := range opps {
		resp = append(resp, toOpportunityResponse(o))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *RecordHandler) GetOpportunityHandler(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	o, err := h.service.GetOpportunity(r.Context(), eventID)
	if err != nil {
		h.fail(w, "opportunity", eventID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOpportunityResponse(o))
}

func (h *RecordHandler) DeleteOpportunityHandler(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	o, err := h.service.DeleteOpportunity(r.Context(), eventID)
	if err != nil {
		h.fail(w, "opportunity", eventID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOpportunityResponse(o))
}

func (h *RecordHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := h.page(w, r)
	if !ok {
		return
	}

	projects, err := h.service.ListProjects(r.Context(), skip, limit)
	if err != nil {
		h.logger.Error("Failed to list projects", zap.Int("skip", skip), zap.Int("limit", limit), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *RecordHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	p, err := h.service.GetProject(r.Context(), eventID)
	if err != nil {
		h.fail(w, "project", eventID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *RecordHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	p, err := h.service.DeleteProject(r.Context(), eventID)
	if err != nil {
		h.fail(w, "project", eventID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (h *RecordHandler) page(w http.ResponseWriter, r *http.Request) (skip, limit int, ok bool) {
	q := r.URL.Query()
	var err error
	if v := q.Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			http.Error(w, "Invalid skip parameter", http.StatusBadRequest)
			return 0, 0, false
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return 0, 0, false
		}
	}
	return skip, limit, true
}

func (h *RecordHandler) fail(w http.ResponseWriter, kind, eventID string, err error) {
	if errors.Is(err, domain.ErrRecordNotFound) {
		h.logger.Warn("Record not found", zap.String("kind", kind), zap.String("event_id", eventID))
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	h.logger.Error("Record request failed", zap.String("kind", kind), zap.String("event_id", eventID), zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *RecordHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := codec.Encode(w, v); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func toOpportunityResponse(o *domain.Opportunity) OpportunityResponse {
	return OpportunityResponse{
		ID:                o.ID,
		EventID:           o.EventID,
		Name:              o.Name,
		Stage:             o.Stage,
		Amount:            o.Amount,
		Probability:       o.Probability,
		ExpectedCloseDate: formatDate(o.ExpectedCloseDate),
		AccountID:         o.AccountID,
		OwnerID:           o.OwnerID,
		Metadata:          o.Metadata,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:         o.UpdatedAt.Format(time.RFC3339Nano),
		DeletedAt:         formatTime(o.DeletedAt),
	}
}

func toProjectResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		EventID:   p.EventID,
		Name:      p.Name,
		Status:    p.Status,
		StartDate: formatDate(p.StartDate),
		EndDate:   formatDate(p.EndDate),
		Budget:    p.Budget,
		IsActive:  p.IsActive,
		ManagerID: p.ManagerID,
		ClientID:  p.ClientID,
		Metadata:  p.Metadata,
		CreatedAt: p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339Nano),
		DeletedAt: formatTime(p.DeletedAt),
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
