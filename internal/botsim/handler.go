// Package botsim simulates the chatbot platform for local runs and tests.
package botsim

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/botmarket/internal/botgateway"
	"github.com/joao-fontenele/botmarket/internal/httpx"
)

type Options struct {
	MinDelay     time.Duration
	MaxDelay     time.Duration
	FailureRate  float64
	DemoLifetime time.Duration
}

type Handler struct {
	opts      Options
	logger    *slog.Logger
	messageID atomic.Int64
}

func NewHandler(opts Options, logger *slog.Logger) *Handler {
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.DemoLifetime <= 0 {
		opts.DemoLifetime = 24 * time.Hour
	}
	return &Handler{
		opts:   opts,
		logger: logger,
	}
}

type demoRequest struct {
	TemplateID   int64  `json:"template_id"`
	TemplateSlug string `json:"template_slug" validate:"required"`
	UserHandle   string `json:"user_handle" validate:"required"`
}

type invoiceRequest struct {
	ChatID      int64           `json:"chat_id" validate:"required"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Payload     string          `json:"payload"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
}

type messageRequest struct {
	ChatID int64  `json:"chat_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// simulate sleeps for the configured latency and reports whether the call
// should fail.
func (h *Handler) simulate() bool {
	delay := h.opts.MinDelay
	if spread := h.opts.MaxDelay - h.opts.MinDelay; spread > 0 {
		delay += time.Duration(mrand.Int63n(int64(spread)))
	}
	time.Sleep(delay)
	return h.opts.FailureRate > 0 && mrand.Float64() < h.opts.FailureRate
}

func (h *Handler) HandleCreateDemo(w http.ResponseWriter, r *http.Request) {
	var req demoRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if h.simulate() {
		httpx.WriteError(w, h.logger, http.StatusServiceUnavailable, "demo provisioning unavailable")
		return
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}
	username := fmt.Sprintf("demo_%s_%s", req.TemplateSlug, hex.EncodeToString(suffix))

	h.logger.Info("demo bot created", "template_slug", req.TemplateSlug, "user_handle", req.UserHandle, "bot_username", username)
	httpx.WriteJSON(w, h.logger, http.StatusOK, botgateway.Demo{
		BotUsername: username,
		DemoURL:     "https://t.me/" + username,
		ExpiresAt:   time.Now().UTC().Add(h.opts.DemoLifetime),
		Commands:    []string{"/start", "/help", "/demo"},
	})
}

func (h *Handler) HandleSendInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if !req.Amount.IsPositive() {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "amount must be positive")
		return
	}
	if h.simulate() {
		httpx.WriteError(w, h.logger, http.StatusServiceUnavailable, "invoice delivery unavailable")
		return
	}

	id := h.messageID.Add(1)
	h.logger.Info("invoice sent", "chat_id", req.ChatID, "amount", req.Amount.StringFixed(2), "currency", req.Currency,
		"payload", req.Payload, "message_id", id)
	httpx.WriteJSON(w, h.logger, http.StatusOK, botgateway.Receipt{MessageID: int(id)})
}

func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if h.simulate() {
		httpx.WriteError(w, h.logger, http.StatusServiceUnavailable, "message delivery unavailable")
		return
	}

	id := h.messageID.Add(1)
	h.logger.Info("message sent", "chat_id", req.ChatID, "message_id", id)
	httpx.WriteJSON(w, h.logger, http.StatusOK, botgateway.Receipt{MessageID: int(id)})
}
