package catalog

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

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

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, categories)
}

func (h *Handler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	category, err := h.service.GetCategory(r.Context(), slug)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, category)
}

func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("templates listed", "count", len(templates))
	httpx.WriteJSON(w, h.logger, http.StatusOK, templates)
}

func (h *Handler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.PopularTemplates(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, templates)
}

func (h *Handler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	template, err := h.service.GetTemplate(r.Context(), slug)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, template)
}

type updateTemplateRequest struct {
	Price  *decimal.Decimal `json:"price"`
	Active *bool            `json:"active"`
}

func (h *Handler) HandleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var req updateTemplateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if req.Price == nil && req.Active == nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "price or active is required")
		return
	}
	if req.Price != nil && req.Price.IsNegative() {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "price must not be negative")
		return
	}

	template, err := h.service.UpdateTemplate(r.Context(), slug, TemplatePatch{Price: req.Price, Active: req.Active})
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("template updated", "slug", slug, "price", template.Price.String(), "active", template.Active)
	httpx.WriteJSON(w, h.logger, http.StatusOK, template)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, stats)
}
