package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/store"
)

const completedOwnershipIndex = "orders_completed_user_template_key"

const orderSelect = `
	SELECT o.id, o.user_id, o.template_id, o.amount, o.currency, o.status, o.download_token,
		o.download_count, o.max_downloads, o.telegram_chat_id, o.created_at, o.updated_at, o.completed_at,
		t.id AS "template.id", t.title AS "template.title", t.slug AS "template.slug"
	FROM orders o
	JOIN templates t ON t.id = o.template_id`

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// LockPurchase serializes purchases of templateID by userID until the
// surrounding transaction ends.
func (r *Repository) LockPurchase(ctx context.Context, userID string, templateID int64) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		fmt.Sprintf("purchase:%s:%d", userID, templateID))
	return err
}

func (r *Repository) HasCompleted(ctx context.Context, userID string, templateID int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.db, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE user_id = $1 AND template_id = $2 AND status = 'completed'
		)
	`, userID, templateID)
	return exists, err
}

// PurchaseInFlight returns the most advanced status among the user's other
// orders for templateID that hold a payment, or "" when there are none.
// Completed sorts first.
func (r *Repository) PurchaseInFlight(ctx context.Context, userID string, templateID int64, excludeOrderID string) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := sqlx.GetContext(ctx, r.db, &status, `
		SELECT status FROM orders
		WHERE user_id = $1 AND template_id = $2 AND id <> $3
			AND status IN ('pending', 'processing', 'completed')
		ORDER BY status = 'completed' DESC
		LIMIT 1
	`, userID, templateID, excludeOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return status, err
}

func (r *Repository) Insert(ctx context.Context, o *domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, template_id, amount, currency, status,
			download_count, max_downloads, telegram_chat_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, o.ID, o.UserID, o.TemplateID, o.Amount, o.Currency, o.Status,
		o.DownloadCount, o.MaxDownloads, o.TelegramChatID, o.CreatedAt)
	return err
}

func (r *Repository) get(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	order := &domain.Order{}
	if err := sqlx.GetContext(ctx, r.db, order, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// GetForUser returns the order only when userID owns it.
func (r *Repository) GetForUser(ctx context.Context, id, userID string) (*domain.Order, error) {
	return r.get(ctx, orderSelect+`
		WHERE o.id = $1 AND o.user_id = $2
	`, id, userID)
}

func (r *Repository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, orderSelect+`
		WHERE o.id = $1
		FOR UPDATE OF o
	`, id)
}

func (r *Repository) GetByTokenForUpdate(ctx context.Context, token string) (*domain.Order, error) {
	return r.get(ctx, orderSelect+`
		WHERE o.download_token = $1
		FOR UPDATE OF o
	`, token)
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := sqlx.SelectContext(ctx, r.db, &orders, orderSelect+`
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateLifecycle persists status, token and completion time. Completing a
// second order for the same user and template fails with ErrAlreadyOwned.
func (r *Repository) UpdateLifecycle(ctx context.Context, o *domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, download_token = $3, completed_at = $4, updated_at = $5
		WHERE id = $1
	`, o.ID, o.Status, o.DownloadToken, o.CompletedAt, o.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err, completedOwnershipIndex) {
			return domain.ErrAlreadyOwned
		}
		return err
	}
	return nil
}

// IncrementDownload consumes one download. It fails with ErrDownloadLimit
// once the ceiling is reached.
func (r *Repository) IncrementDownload(ctx context.Context, id string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, `
		UPDATE orders
		SET download_count = download_count + 1, updated_at = NOW()
		WHERE id = $1 AND download_count < max_downloads
		RETURNING download_count
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrDownloadLimit
		}
		return 0, err
	}
	return count, nil
}
