package reviews

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/catalog"
	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/httpx"
)

type Handler struct {
	repo    *Repository
	catalog *catalog.Service
	logger  *slog.Logger
}

func NewHandler(repo *Repository, catalog *catalog.Service, logger *slog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
	}
}

type createReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	template, err := h.catalog.GetTemplate(r.Context(), r.PathValue("slug"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	reviews, err := h.repo.ListByTemplate(r.Context(), template.ID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, reviews)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req createReviewRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	slug := r.PathValue("slug")
	template, err := h.catalog.GetTemplate(r.Context(), slug)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	username := id.Username
	if username == "" {
		username = id.Handle()
	}

	review := &domain.Review{
		UserID:     id.UserID,
		Username:   username,
		TemplateID: template.ID,
		Rating:     req.Rating,
		Comment:    req.Comment,
	}
	if err := h.repo.Create(r.Context(), review); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	h.catalog.InvalidateTemplate(r.Context(), slug)

	h.logger.Info("review created", "review_id", review.ID, "template_id", template.ID, "user_id", id.UserID)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, review)
}
