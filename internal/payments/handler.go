package payments

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type createPaymentRequest struct {
	OrderID string               `json:"order_id" validate:"required"`
	Method  domain.PaymentMethod `json:"payment_method" validate:"required"`
}

type updateStatusRequest struct {
	Status          domain.PaymentStatus   `json:"status"`
	TransactionID   string                 `json:"transaction_id" validate:"max=200"`
	GatewayResponse domain.GatewayResponse `json:"gateway_response"`
}

func (r updateStatusRequest) update() domain.PaymentUpdate {
	return domain.PaymentUpdate{
		Status:          r.Status,
		TransactionID:   r.TransactionID,
		GatewayResponse: r.GatewayResponse,
	}
}

func (r updateStatusRequest) empty() bool {
	return r.Status == "" && r.TransactionID == "" && len(r.GatewayResponse) == 0
}

// paymentResponse is a payment plus the order state it cascaded to.
type paymentResponse struct {
	*domain.Payment
	OrderStatus domain.OrderStatus `json:"order_status,omitempty"`
	Replayed    bool               `json:"replayed,omitempty"`
}

func newPaymentResponse(result *Result) paymentResponse {
	resp := paymentResponse{Payment: result.Payment, Replayed: result.Replayed}
	if result.Order != nil {
		resp.OrderStatus = result.Order.Status
	}
	return resp
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req createPaymentRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	payment, err := h.service.Create(r.Context(), id, req.OrderID, req.Method)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, payment)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	payments, err := h.service.ListForUser(r.Context(), id.UserID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payments)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	payment, err := h.service.Get(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payment)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	result, err := h.service.Cancel(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, newPaymentResponse(result))
}

// HandleUpdateStatus is the admin route for manual status changes.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if req.empty() {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "at least one of status, transaction_id, gateway_response is required")
		return
	}

	result, err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), req.update())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	id, _ := auth.FromContext(r.Context())
	h.logger.Info("payment status set by admin", "payment_id", result.Payment.ID, "status", result.Payment.Status, "admin_id", id.UserID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, newPaymentResponse(result))
}
