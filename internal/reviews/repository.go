package reviews

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/store"
)

const uniqueReviewConstraint = "reviews_user_template_key"

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// Create inserts review and fills its id and timestamp. A second review by
// the same user for the same template fails with ErrAlreadyReviewed.
func (r *Repository) Create(ctx context.Context, review *domain.Review) error {
	err := sqlx.GetContext(ctx, r.db, review, `
		INSERT INTO reviews (user_id, username, template_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, username, template_id, rating, comment, created_at
	`, review.UserID, review.Username, review.TemplateID, review.Rating, review.Comment)
	if err != nil {
		if store.IsUniqueViolation(err, uniqueReviewConstraint) {
			return domain.ErrAlreadyReviewed
		}
		return err
	}
	return nil
}

func (r *Repository) ListByTemplate(ctx context.Context, templateID int64) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := sqlx.SelectContext(ctx, r.db, &reviews, `
		SELECT id, user_id, username, template_id, rating, comment, created_at
		FROM reviews
		WHERE template_id = $1
		ORDER BY created_at DESC, id DESC
	`, templateID)
	if err != nil {
		return nil, err
	}
	return reviews, nil
}
