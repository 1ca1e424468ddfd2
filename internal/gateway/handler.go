package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/couturelab/backend/internal/genai"
	"github.com/couturelab/backend/internal/middleware"
	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/services"
)

// Handler serves the /v1/generations endpoint.
type Handler struct {
	Svc       *Service
	Validator *services.Validator
	Logger    *slog.Logger
}

func NewHandler(svc *Service, validator *services.Validator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Svc: svc, Validator: validator, Logger: logger}
}

// Generate handles POST /v1/generations.
// Auth and pre-flight credit check run in middleware; here: schema
// validation (hard reject) -> service call -> wire response.
// ?action=regeneration marks a single-slot regeneration for usage
// accounting; pricing is identical.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req models.GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if h.Validator != nil {
		if err := h.Validator.ValidateRequest(req.Type, body); err != nil {
			if errors.Is(err, services.ErrValidation) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	action := models.ActionGeneration
	switch r.URL.Query().Get("action") {
	case "", models.ActionGeneration:
	case models.ActionRegeneration:
		action = models.ActionRegeneration
	default:
		writeError(w, http.StatusBadRequest, "invalid action")
		return
	}

	resp, err := h.Svc.Generate(r.Context(), user.ID, action, req)
	if err != nil {
		h.writeServiceError(w, user, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, user *models.User, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUserInactive), errors.Is(err, ErrNotEntitled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, genai.ErrModel):
		h.Logger.Warn("model call failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusBadGateway, "image generation failed")
	default:
		h.Logger.Error("generation failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
