package payment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Service:     service,
	}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (apperrors.Principal, bool) {
	p, ok := apperrors.PrincipalFromContext(r.Context())
	if !ok {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return apperrors.Principal{}, false
	}
	return p, true
}

// OpenCheckout handles POST /api/v1/enrollments/{id}/checkout
func (h *Handler) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	enrollmentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || enrollmentID <= 0 {
		h.HandleError(w, apperrors.NewValidationError("invalid enrollment ID", apperrors.ErrCodeValidationFailed))
		return
	}

	snap, err := h.Service.Open(r.Context(), p, enrollmentID)
	if err != nil {
		h.Logger.Warn("OpenCheckout: service error", "error", err, "enrollment_id", enrollmentID, "user_id", p.UserID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, checkoutResponse(snap))
}

// PaymentHistory handles GET /api/v1/enrollments/{id}/payments
func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	enrollmentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || enrollmentID <= 0 {
		h.HandleError(w, apperrors.NewValidationError("invalid enrollment ID", apperrors.ErrCodeValidationFailed))
		return
	}

	txns, err := h.Service.History(r.Context(), p, enrollmentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, HistoryResponse{EnrollmentID: enrollmentID, Payments: txns})
}

// ListMethods handles GET /api/v1/checkout/methods
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, MethodsResponse{Methods: Methods(), UPIApps: UPIApps()})
}

// GetCheckout handles GET /api/v1/checkout/{sessionID}
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	snap, err := h.Service.Get(r.Context(), p, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, checkoutResponse(snap))
}

// UpdateInput handles POST /api/v1/checkout/{sessionID}/input
func (h *Handler) UpdateInput(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("UpdateInput: failed to parse request body", "error", err)
		h.HandleError(w, errInvalidBody)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	v, snap, err := h.Service.UpdateInput(r.Context(), p, chi.URLParam(r, "sessionID"), req.PaymentMethodInput)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, InputResponse{Validation: v, Checkout: snap})
}

// Pay handles POST /api/v1/checkout/{sessionID}/pay
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Logger.Warn("Pay: failed to parse request body", "error", err)
		h.HandleError(w, errInvalidBody)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	snap, err := h.Service.Pay(r.Context(), p, sessionID, req.Method)
	if err != nil {
		h.Logger.Info("Pay: rejected", "error", err, "session_id", sessionID, "user_id", p.UserID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if snap.State != StateProcessing {
		status = http.StatusOK
	}
	h.WriteJSON(w, status, checkoutResponse(snap))
}

// Retry handles POST /api/v1/checkout/{sessionID}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	snap, err := h.Service.Retry(r.Context(), p, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, checkoutResponse(snap))
}

// Cancel handles POST /api/v1/checkout/{sessionID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	snap, err := h.Service.Cancel(r.Context(), p, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, checkoutResponse(snap))
}
