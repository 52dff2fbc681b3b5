package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/botmarket/internal/botgateway"
	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

// Topics are the events the notifier subscribes to.
var Topics = []string{domain.TopicPaymentCreated, domain.TopicOrderCompleted}

// Handler turns marketplace events into Telegram invoices and messages.
// Delivery failures are logged and counted; the event is still acknowledged.
type Handler struct {
	gateway   botgateway.Gateway
	metrics   *telemetry.Metrics
	publicURL string
	logger    *slog.Logger
}

func NewHandler(gateway botgateway.Gateway, metrics *telemetry.Metrics, publicURL string, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:   gateway,
		metrics:   metrics,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case domain.TopicPaymentCreated:
		var event domain.PaymentEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			h.logger.Error("dropping malformed payment event", "error", err, "topic", topic)
			return nil
		}
		h.sendInvoice(ctx, event)
	case domain.TopicOrderCompleted:
		var event domain.OrderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			h.logger.Error("dropping malformed order event", "error", err, "topic", topic)
			return nil
		}
		h.sendPurchaseMessage(ctx, event)
	default:
		h.logger.Debug("ignoring event", "topic", topic)
	}
	return nil
}

func (h *Handler) sendInvoice(ctx context.Context, event domain.PaymentEvent) {
	if event.Method != domain.PaymentMethodTelegram || event.TelegramChatID == 0 {
		h.logger.Debug("payment needs no invoice", "payment_id", event.PaymentID, "method", event.Method)
		return
	}

	title := event.TemplateTitle
	if title == "" {
		title = "Chatbot template"
	}
	receipt, err := h.gateway.SendInvoice(ctx, botgateway.Invoice{
		ChatID:      event.TelegramChatID,
		Title:       title,
		Description: fmt.Sprintf("Payment for order %s", event.OrderID),
		Payload:     event.PaymentID,
		Amount:      event.Amount,
		Currency:    event.Currency,
	})
	h.metrics.GatewayCall(ctx, "send_invoice", err)
	if err != nil {
		h.logger.Error("failed to send invoice", "error", err, "payment_id", event.PaymentID, "order_id", event.OrderID)
		return
	}

	h.logger.Info("invoice sent", "payment_id", event.PaymentID, "order_id", event.OrderID, "message_id", receipt.MessageID)
}

func (h *Handler) sendPurchaseMessage(ctx context.Context, event domain.OrderEvent) {
	if event.TelegramChatID == 0 {
		h.logger.Debug("buyer has no telegram chat", "order_id", event.OrderID)
		return
	}

	text := fmt.Sprintf("Thank you for purchasing %s! Your download is ready: %s/api/orders/%s/download",
		event.TemplateTitle, h.publicURL, event.OrderID)
	receipt, err := h.gateway.SendMessage(ctx, event.TelegramChatID, text)
	h.metrics.GatewayCall(ctx, "send_message", err)
	if err != nil {
		h.logger.Error("failed to send purchase message", "error", err, "order_id", event.OrderID)
		return
	}

	h.logger.Info("purchase message sent", "order_id", event.OrderID, "message_id", receipt.MessageID)
}
