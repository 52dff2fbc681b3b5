package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/domain"
)

const popularLimit = 10

type CategoryDetail struct {
	domain.Category
	Templates []domain.Template `json:"templates"`
}

type Service struct {
	repo   *Repository
	cache  Cache
	logger *slog.Logger
}

// NewService builds the catalog service. cache may be nil.
func NewService(db *sqlx.DB, cache Cache, logger *slog.Logger) *Service {
	return &Service{
		repo:   NewRepository(db),
		cache:  cache,
		logger: logger,
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, slug string) (*CategoryDetail, error) {
	category, err := s.repo.GetCategory(ctx, slug)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, domain.ErrCategoryNotFound
	}

	templates, err := s.repo.ListTemplates(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &CategoryDetail{Category: *category, Templates: templates}, nil
}

func (s *Service) ListTemplates(ctx context.Context, categorySlug string) ([]domain.Template, error) {
	return s.repo.ListTemplates(ctx, categorySlug)
}

func (s *Service) PopularTemplates(ctx context.Context) ([]domain.Template, error) {
	return s.repo.PopularTemplates(ctx, popularLimit)
}

// GetTemplate returns an active template, reading through the cache.
func (s *Service) GetTemplate(ctx context.Context, slug string) (*domain.Template, error) {
	if s.cache != nil {
		template, err := s.cache.GetTemplate(ctx, slug)
		if err == nil {
			return template, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("template cache read failed", "error", err, "slug", slug)
		}
	}

	template, err := s.repo.GetTemplateBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if template == nil || !template.Active {
		return nil, domain.ErrTemplateNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetTemplate(ctx, template); err != nil {
			s.logger.Warn("template cache write failed", "error", err, "slug", slug)
		}
	}
	return template, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, slug string, patch TemplatePatch) (*domain.Template, error) {
	found, err := s.repo.UpdateTemplate(ctx, slug, patch)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrTemplateNotFound
	}
	s.InvalidateTemplate(ctx, slug)

	template, err := s.repo.GetTemplateBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, domain.ErrTemplateNotFound
	}
	return template, nil
}

// InvalidateTemplate drops the cached detail for slug.
func (s *Service) InvalidateTemplate(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteTemplate(ctx, slug); err != nil {
		s.logger.Warn("template cache invalidation failed", "error", err, "slug", slug)
	}
}

func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.repo.Stats(ctx)
}
