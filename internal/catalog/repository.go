package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/botmarket/internal/domain"
)

const templateSelect = `
	SELECT t.id, t.title, t.slug, t.description, t.short_description, t.price, t.category_id,
		t.features, t.file_path, t.demo_available, t.active, t.download_count, t.created_at, t.updated_at,
		c.id AS "category.id", c.name AS "category.name", c.slug AS "category.slug",
		c.description AS "category.description", c.icon AS "category.icon", c.created_at AS "category.created_at",
		COALESCE(r.average_rating, 0) AS average_rating, COALESCE(r.review_count, 0) AS review_count
	FROM templates t
	JOIN categories c ON c.id = t.category_id
	LEFT JOIN (
		SELECT template_id, AVG(rating)::float8 AS average_rating, COUNT(*) AS review_count
		FROM reviews
		GROUP BY template_id
	) r ON r.template_id = t.id`

type Repository struct {
	db sqlx.ExtContext
}

// NewRepository binds the repository to a pool or a transaction.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories := []domain.Category{}
	err := sqlx.SelectContext(ctx, r.db, &categories, `
		SELECT id, name, slug, description, icon, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *Repository) GetCategory(ctx context.Context, slug string) (*domain.Category, error) {
	category := &domain.Category{}
	err := sqlx.GetContext(ctx, r.db, category, `
		SELECT id, name, slug, description, icon, created_at
		FROM categories
		WHERE slug = $1
	`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return category, nil
}

// ListTemplates returns active templates, newest first. An empty
// categorySlug lists every category.
func (r *Repository) ListTemplates(ctx context.Context, categorySlug string) ([]domain.Template, error) {
	templates := []domain.Template{}
	err := sqlx.SelectContext(ctx, r.db, &templates, templateSelect+`
		WHERE t.active AND ($1 = '' OR c.slug = $1)
		ORDER BY t.created_at DESC, t.id DESC
	`, categorySlug)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *Repository) PopularTemplates(ctx context.Context, limit int) ([]domain.Template, error) {
	templates := []domain.Template{}
	err := sqlx.SelectContext(ctx, r.db, &templates, templateSelect+`
		WHERE t.active
		ORDER BY t.download_count DESC, t.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *Repository) GetTemplateBySlug(ctx context.Context, slug string) (*domain.Template, error) {
	template := &domain.Template{}
	err := sqlx.GetContext(ctx, r.db, template, templateSelect+`
		WHERE t.slug = $1
	`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return template, nil
}

// GetTemplateForPurchase loads the fields an order snapshots, locking the
// row against concurrent administrative edits.
func (r *Repository) GetTemplateForPurchase(ctx context.Context, id int64) (*domain.Template, error) {
	template := &domain.Template{}
	err := sqlx.GetContext(ctx, r.db, template, `
		SELECT id, title, slug, price, category_id, file_path, demo_available, active, download_count
		FROM templates
		WHERE id = $1
		FOR SHARE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return template, nil
}

type TemplatePatch struct {
	Price  *decimal.Decimal
	Active *bool
}

// UpdateTemplate applies patch and reports whether the template exists.
func (r *Repository) UpdateTemplate(ctx context.Context, slug string, patch TemplatePatch) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE templates
		SET price = COALESCE($2, price), active = COALESCE($3, active), updated_at = NOW()
		WHERE slug = $1
	`, slug, patch.Price, patch.Active)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *Repository) IncrementDownloads(ctx context.Context, templateID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE templates SET download_count = download_count + 1
		WHERE id = $1
	`, templateID)
	return err
}

func (r *Repository) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{}
	err := sqlx.GetContext(ctx, r.db, stats, `
		SELECT
			(SELECT COUNT(*) FROM templates WHERE active) AS templates,
			(SELECT COUNT(*) FROM categories) AS categories,
			(SELECT COALESCE(SUM(download_count), 0) FROM templates) AS total_downloads
	`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
