package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/botmarket/internal/httpx"
)

const (
	SignatureHeader      = "X-Signature"
	IdempotencyKeyHeader = "Idempotency-Key"

	signaturePrefix = "sha256="
	maxWebhookBytes = 1 << 20

	maxIdempotencyKeyLen = 200
)

type WebhookHandler struct {
	service *Service
	secret  []byte
	logger  *slog.Logger
}

func NewWebhookHandler(service *Service, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		secret:  []byte(secret),
		logger:  logger,
	}
}

type webhookRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	updateStatusRequest
}

// Sign returns the X-Signature value for body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(signature string, body []byte) bool {
	if len(h.secret) == 0 {
		return false
	}
	got, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	gotMAC, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(gotMAC, mac.Sum(nil))
}

func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.verify(r.Header.Get(SignatureHeader), body) {
		h.logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr)
		httpx.WriteError(w, h.logger, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req webhookRequest
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if req.empty() {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "at least one of status, transaction_id, gateway_response is required")
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}
	result, err := h.service.HandleWebhook(r.Context(), key, req.PaymentID, req.update())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, newPaymentResponse(result))
}
