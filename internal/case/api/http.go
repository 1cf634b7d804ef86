package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rdss/casework/internal/case/domain"
	"github.com/rdss/casework/internal/priority"
	"github.com/rdss/casework/internal/shared/auth"
	"github.com/rdss/casework/internal/shared/clock"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/events"
	"github.com/rdss/casework/internal/shared/metrics"
	"github.com/rdss/casework/internal/shared/types"
)

// Handler provides HTTP handlers for the case module
type Handler struct {
	repo   domain.Repository
	tiers  *priority.Registry
	bus    events.Publisher
	clock  clock.Clock
	logger *zap.Logger
}

// NewHandler creates a new case handler
func NewHandler(repo domain.Repository, tiers *priority.Registry, bus events.Publisher, clk clock.Clock, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, tiers: tiers, bus: bus, clock: clk, logger: logger}
}

// Routes registers the case routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCases)
	r.Post("/", h.CreateCase)

	r.Route("/{caseID}", func(r chi.Router) {
		r.Get("/", h.GetCase)

		r.Post("/transition", h.TransitionCase)
		r.Post("/priority", h.ChangePriority)
		r.Post("/risk", h.SetRisk)
		r.Post("/budget", h.SetBudget)

		r.Get("/events", h.GetEvents)
	})

	return r
}

// --- Request types ---

type CreateCaseRequest struct {
	BeneficiaryID    types.ID `json:"beneficiary_id"`
	Title            string   `json:"title"`
	PresentingIssues string   `json:"presenting_issues,omitempty"`
	PriorityCode     string   `json:"priority_code,omitempty"`
	PrimaryWorkerID  types.ID `json:"primary_worker_id,omitempty"`
	SupervisorID     types.ID `json:"supervisor_id,omitempty"`
}

type TransitionRequest struct {
	Status         domain.CaseStatus `json:"status"`
	ClosureReason  string            `json:"closure_reason,omitempty"`
	ClosureSummary string            `json:"closure_summary,omitempty"`
}

type ChangePriorityRequest struct {
	PriorityCode string `json:"priority_code"`
}

type SetRiskRequest struct {
	RiskLevel          domain.RiskLevel `json:"risk_level"`
	RiskMitigationPlan string           `json:"risk_mitigation_plan,omitempty"`
}

type SetBudgetRequest struct {
	ServiceBudget float64 `json:"service_budget"`
	FundingSource string  `json:"funding_source,omitempty"`
}

// --- Handlers ---

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.CaseStatus(s)
		filter.Status = &status
	}
	if rl := r.URL.Query().Get("risk_level"); rl != "" {
		level := domain.RiskLevel(rl)
		filter.RiskLevel = &level
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		filter.PriorityCode = &p
	}
	if b := r.URL.Query().Get("beneficiary_id"); b != "" {
		id, err := types.ParseID(b)
		if err != nil {
			writeError(w, errors.BadRequest("invalid beneficiary ID"))
			return
		}
		filter.BeneficiaryID = &id
	}
	if wk := r.URL.Query().Get("worker_id"); wk != "" {
		id, err := types.ParseID(wk)
		if err != nil {
			writeError(w, errors.BadRequest("invalid worker ID"))
			return
		}
		filter.WorkerID = &id
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	cases, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  cases,
		"total": total,
	})
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return
	}

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	// A tier, when assigned at intake, must exist in the registry.
	if req.PriorityCode != "" {
		if err := priority.ValidateCode(req.PriorityCode); err != nil {
			writeError(w, err)
			return
		}
		if _, err := h.tiers.Get(req.PriorityCode); err != nil {
			writeError(w, err)
			return
		}
	}

	workerID := req.PrimaryWorkerID
	if workerID.IsZero() {
		if user := auth.GetUser(r.Context()); user != nil {
			workerID = user.ID
		}
	}

	c, err := domain.NewCase(
		req.BeneficiaryID,
		req.Title,
		req.PresentingIssues,
		req.PriorityCode,
		workerID,
		req.SupervisorID,
		h.clock.Now(),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Save(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordCaseOpened()
	h.publishEvents(r.Context(), c)

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) TransitionCase(w http.ResponseWriter, r *http.Request) {
	c, actorID, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	oldStatus := c.Status
	in := domain.TransitionInput{
		ClosureReason:  req.ClosureReason,
		ClosureSummary: req.ClosureSummary,
	}
	if err := c.Transition(req.Status, in, actorID, h.clock.Now()); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordCaseStatusChange(string(oldStatus), string(c.Status))
	h.publishEvents(r.Context(), c)

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ChangePriority(w http.ResponseWriter, r *http.Request) {
	c, actorID, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	var req ChangePriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := priority.ValidateCode(req.PriorityCode); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.tiers.Get(req.PriorityCode); err != nil {
		writeError(w, err)
		return
	}

	if err := c.ChangePriority(req.PriorityCode, actorID, h.clock.Now()); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordCasePriorityChange(req.PriorityCode)
	h.publishEvents(r.Context(), c)

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SetRisk(w http.ResponseWriter, r *http.Request) {
	c, actorID, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	var req SetRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := c.SetRisk(req.RiskLevel, req.RiskMitigationPlan, actorID, h.clock.Now()); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), c)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SetBudget(w http.ResponseWriter, r *http.Request) {
	c, actorID, ok := h.loadCase(w, r)
	if !ok {
		return
	}

	var req SetBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := c.SetBudget(req.ServiceBudget, req.FundingSource, actorID, h.clock.Now()); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), c)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evts, err := h.repo.GetEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  evts,
		"total": len(evts),
	})
}

// --- Helpers ---

func (h *Handler) loadCase(w http.ResponseWriter, r *http.Request) (*domain.Case, types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return nil, types.ID(""), false
	}

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, types.ID(""), false
	}

	var actorID types.ID
	if user := auth.GetUser(r.Context()); user != nil {
		actorID = user.ID
	}

	return c, actorID, true
}

func (h *Handler) publishEvents(ctx context.Context, c *domain.Case) {
	if h.bus == nil {
		return
	}

	for _, e := range c.GetDomainEvents() {
		event := events.NewEvent("case."+e.Type, "case", map[string]any{
			"event": e.CaseEvent,
		}).WithCase(c.ID, c.BeneficiaryID, c.PriorityCode).WithActor(e.CaseEvent.ActorID)

		if err := h.bus.Publish(ctx, event); err != nil {
			h.logger.Warn("failed to publish case event",
				zap.String("type", event.Type),
				zap.String("case_id", c.ID.String()),
				zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
