package priority

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rdss/casework/internal/shared/errors"
)

// Handler provides HTTP handlers for the tier registry
type Handler struct {
	registry *Registry
}

// NewHandler creates a new priority handler
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Routes registers the priority routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListTiers)
	r.Get("/{code}", h.GetTier)

	return r
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": h.registry.All()})
}

func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := ValidateCode(code); err != nil {
		writeError(w, err)
		return
	}

	tier, err := h.registry.Get(code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tier)
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
