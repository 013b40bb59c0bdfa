package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-patungan/internal/common"
	"github.com/noah-isme/backend-patungan/internal/money"
	"github.com/noah-isme/backend-patungan/internal/qr"
	"github.com/noah-isme/backend-patungan/internal/split"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type itemReq struct {
	ID             string   `json:"id"`
	Name           string   `json:"name" validate:"required"`
	Price          float64  `json:"price" validate:"gte=0"`
	ParticipantIDs []string `json:"participantIds"`
}

type createReq struct {
	RestaurantName string    `json:"restaurantName" validate:"required"`
	WaiterName     string    `json:"waiterName"`
	TableNumber    string    `json:"tableNumber"`
	TotalAmount    float64   `json:"totalAmount" validate:"gt=0"`
	TipPercentage  float64   `json:"tipPercentage" validate:"gte=0,lte=100"`
	Items          []itemReq `json:"items" validate:"dive"`
}

// Create opens a new session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid body", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	sess, err := h.Svc.Create(r.Context(), CreateInput{
		RestaurantName: req.RestaurantName,
		WaiterName:     req.WaiterName,
		TableNumber:    req.TableNumber,
		TotalAmount:    req.TotalAmount,
		TipPercentage:  req.TipPercentage,
		Items:          toItems(req.Items),
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, sess)
}

// Get returns the full session document.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

type qrResp struct {
	SessionID string `json:"sessionId"`
	JoinURL   string `json:"joinUrl"`
	QRCode    string `json:"qrCode"`
}

// QR renders the session's join URL as a base64 PNG.
func (h *Handler) QR(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	target := sess.JoinURL
	if target == "" {
		target = "/join/" + sess.ID
	}
	encoded, err := qr.Base64PNG(target, qr.DefaultSize)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to render qr code", nil)
		return
	}
	common.JSON(w, http.StatusOK, qrResp{SessionID: sess.ID, JoinURL: target, QRCode: encoded})
}

type joinReq struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// Join adds a participant to an active session.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid body", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	joined, err := h.Svc.Join(r.Context(), chi.URLParam(r, "id"), req.Name, req.Email, req.Phone)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, joined)
}

type calculateReq struct {
	Items []itemReq `json:"items" validate:"omitempty,dive"`
}

// Calculate recomputes the split, optionally replacing the item list.
// An absent items field keeps the current items; an empty list clears
// them and falls back to an equal split.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid body", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	var items []Item
	if req.Items != nil {
		items = toItems(req.Items)
	}
	sess, err := h.Svc.RecomputeSplit(r.Context(), chi.URLParam(r, "id"), items)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

type customReq struct {
	CustomAmounts map[string]float64 `json:"customAmounts" validate:"required"`
}

// CalculateCustom applies explicit amounts and splits the remainder
// between everyone else.
func (h *Handler) CalculateCustom(w http.ResponseWriter, r *http.Request) {
	var req customReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid body", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	sess, err := h.Svc.ApplyCustomSplit(r.Context(), chi.URLParam(r, "id"), req.CustomAmounts)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sess)
}

// Status reports payment progress.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, summary)
}

// Cancel terminates an active session.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func toItems(reqs []itemReq) []Item {
	items := make([]Item, len(reqs))
	for i, it := range reqs {
		items[i] = Item{
			ID:             strings.TrimSpace(it.ID),
			Name:           it.Name,
			PriceCents:     money.FromFloat(it.Price),
			ParticipantIDs: append([]string(nil), it.ParticipantIDs...),
		}
	}
	return items
}

func writeSessionError(w http.ResponseWriter, err error) {
	common.WriteAppError(w, toAppError(err))
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewAppError(common.CodeSessionNotFound, "session not found", http.StatusNotFound, err)
	case errors.Is(err, ErrParticipantNotFound):
		return common.NewAppError(common.CodeParticipantNotFound, err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrNotActive):
		return common.NewAppError(common.CodeSessionNotActive, "session is not active", http.StatusConflict, err)
	case errors.Is(err, ErrNoParticipants):
		return common.NewAppError(common.CodeNoParticipants, "session has no participants", http.StatusConflict, err)
	case errors.Is(err, ErrValidation):
		return common.NewAppError(common.CodeValidation, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, split.ErrExceedsTotal):
		return common.NewAppError(common.CodeExceedsTotal, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, split.ErrUnallocatedRemainder):
		return common.NewAppError(common.CodeUnallocatedRemainder, err.Error(), http.StatusBadRequest, err)
	default:
		return err
	}
}
