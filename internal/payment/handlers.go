package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-patungan/internal/common"
	"github.com/noah-isme/backend-patungan/internal/money"
	"github.com/noah-isme/backend-patungan/internal/session"
)

// Handler exposes the payment attempt endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type attemptReq struct {
	ParticipantID string  `json:"participantId" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	AmountCents   int64   `json:"amountCents"`
}

// Attempt opens a payment attempt for one participant of a session.
// Clients may submit the amount either in cents or as a decimal; cents
// win when both are present.
func (h *Handler) Attempt(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if sessionID == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "session id is required", nil)
		return
	}
	var req attemptReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid body", nil)
		return
	}
	if req.AmountCents <= 0 {
		if h.Validate != nil {
			if err := h.Validate.Struct(req); err != nil {
				common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
				return
			}
		}
		req.AmountCents = int64(money.FromFloat(req.Amount))
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "participantId is required", nil)
		return
	}

	attempt, err := h.Svc.RecordAttempt(r.Context(), sessionID, req.ParticipantID, req.AmountCents)
	if err != nil {
		writeAttemptError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, attempt)
}

func writeAttemptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeSessionNotFound, "session not found", nil)
	case errors.Is(err, session.ErrParticipantNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeParticipantNotFound, "participant not found", nil)
	case errors.Is(err, session.ErrNotActive):
		common.JSONError(w, http.StatusConflict, common.CodeSessionNotActive, "session is not active", nil)
	case errors.Is(err, ErrAlreadyPaid):
		common.JSONError(w, http.StatusConflict, common.CodeAlreadyPaid, "participant already paid", nil)
	case errors.Is(err, ErrAmountMismatch):
		common.JSONError(w, http.StatusBadRequest, common.CodeAmountMismatch, err.Error(), nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "ATTEMPT_FAILED", err.Error(), nil)
	}
}
