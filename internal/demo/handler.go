package demo

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/botgateway"
	"github.com/joao-fontenele/botmarket/internal/catalog"
	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/httpx"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

type Handler struct {
	catalog *catalog.Service
	gateway botgateway.Gateway
	metrics *telemetry.Metrics
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler serves demo requests. Each gateway call is bounded by timeout.
func NewHandler(catalog *catalog.Service, gateway botgateway.Gateway, metrics *telemetry.Metrics, timeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		gateway: gateway,
		metrics: metrics,
		timeout: timeout,
		logger:  logger,
	}
}

type demoResponse struct {
	Success bool `json:"success"`
	*botgateway.Demo
	Error string `json:"error,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	template, err := h.catalog.GetTemplate(r.Context(), r.PathValue("slug"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if !template.DemoAvailable {
		httpx.WriteDomainError(w, h.logger, domain.ErrDemoUnavailable)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	demo, err := h.gateway.CreateDemo(ctx, botgateway.DemoRequest{
		TemplateID:   template.ID,
		TemplateSlug: template.Slug,
		UserHandle:   id.Handle(),
	})
	h.metrics.GatewayCall(r.Context(), "create_demo", err)
	if err != nil {
		h.logger.Error("failed to create demo", "error", err, "template_id", template.ID, "user_id", id.UserID)
		httpx.WriteJSON(w, h.logger, http.StatusServiceUnavailable, demoResponse{
			Success: false,
			Error:   "demo service is temporarily unavailable",
		})
		return
	}

	h.logger.Info("demo created", "template_id", template.ID, "user_id", id.UserID, "bot_username", demo.BotUsername)
	httpx.WriteJSON(w, h.logger, http.StatusOK, demoResponse{Success: true, Demo: demo})
}
