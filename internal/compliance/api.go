package compliance

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rdss/casework/internal/shared/errors"
)

// Handler provides HTTP handlers for the compliance module
type Handler struct {
	runner *Runner
}

// NewHandler creates a new compliance handler
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// Routes registers the compliance routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/report", h.GetReport)
	return r
}

// GetReport serves the compliance report. ?refresh=true forces a
// recomputation instead of a cached snapshot.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"

	report, err := h.runner.Report(r.Context(), refresh)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
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
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
