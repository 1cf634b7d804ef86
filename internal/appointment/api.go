package appointment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rdss/casework/internal/shared/auth"
	"github.com/rdss/casework/internal/shared/errors"
	"github.com/rdss/casework/internal/shared/types"
)

// Handler provides HTTP handlers for the appointment module
type Handler struct {
	scheduler *Scheduler
}

// NewHandler creates a new appointment handler
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// Routes registers the appointment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAppointments)
	r.Post("/", h.ScheduleAppointment)

	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.GetAppointment)
		r.Get("/conflicts", h.GetConflicts)
		r.Post("/transition", h.TransitionAppointment)
		r.Post("/reschedule", h.RescheduleAppointment)
	})

	return r
}

type TransitionRequest struct {
	Status             Status           `json:"status"`
	Outcome            string           `json:"outcome,omitempty"`
	AttendanceStatus   AttendanceStatus `json:"attendance_status,omitempty"`
	NoShowReason       string           `json:"no_show_reason,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
}

type RescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Reason    string `json:"reason,omitempty"`
}

type RescheduleResponse struct {
	Old *Appointment `json:"old"`
	New *Appointment `json:"new"`
	// Conflicts found for the replacement slot
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}

	if c := r.URL.Query().Get("case_id"); c != "" {
		id, err := types.ParseID(c)
		if err != nil {
			writeError(w, errors.BadRequest("invalid case ID"))
			return
		}
		filter.CaseID = &id
	}
	if b := r.URL.Query().Get("beneficiary_id"); b != "" {
		id, err := types.ParseID(b)
		if err != nil {
			writeError(w, errors.BadRequest("invalid beneficiary ID"))
			return
		}
		filter.BeneficiaryID = &id
	}
	if a := r.URL.Query().Get("assignee_id"); a != "" {
		id, err := types.ParseID(a)
		if err != nil {
			writeError(w, errors.BadRequest("invalid assignee ID"))
			return
		}
		filter.AssigneeID = &id
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if f := r.URL.Query().Get("from"); f != "" {
		d, err := time.Parse("2006-01-02", f)
		if err != nil {
			writeError(w, errors.BadRequest("invalid from date"))
			return
		}
		filter.DateFrom = &d
	}
	if t := r.URL.Query().Get("to"); t != "" {
		d, err := time.Parse("2006-01-02", t)
		if err != nil {
			writeError(w, errors.BadRequest("invalid to date"))
			return
		}
		filter.DateTo = &d
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	appts, total, err := h.scheduler.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  appts,
		"total": total,
	})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	appt, err := h.scheduler.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	conflicts, err := h.scheduler.DetectConflicts(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  conflicts,
		"total": len(conflicts),
	})
}

func (h *Handler) ScheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req ScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.scheduler.Schedule(r.Context(), req, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) TransitionAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	appt, err := h.scheduler.Transition(r.Context(), id, req.Status, TransitionInput{
		Outcome:            req.Outcome,
		AttendanceStatus:   req.AttendanceStatus,
		NoShowReason:       req.NoShowReason,
		CancellationReason: req.CancellationReason,
	}, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appointment ID"))
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, old, err := h.scheduler.Reschedule(r.Context(), id, req.Date, req.StartTime, req.Reason, actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RescheduleResponse{
		Old:       old,
		New:       result.Appointment,
		Conflicts: result.Conflicts,
	})
}

func actorID(r *http.Request) types.ID {
	if user := auth.GetUser(r.Context()); user != nil {
		return user.ID
	}
	return types.ID("")
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
