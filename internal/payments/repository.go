package payments

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/store"
)

const uniqueOrderPayment = "payments_order_id_key"

const paymentColumns = `p.id, p.order_id, p.payment_method, p.transaction_id, p.amount, p.currency,
		p.status, p.gateway_response, p.created_at, p.updated_at, p.processed_at`

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

// Insert stores p. A second payment for the same order fails with
// ErrPaymentExists.
func (r *Repository) Insert(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, payment_method, transaction_id, amount, currency,
			status, gateway_response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, p.ID, p.OrderID, p.Method, p.TransactionID, p.Amount, p.Currency,
		p.Status, p.GatewayResponse, p.CreatedAt)
	if err != nil {
		if store.IsUniqueViolation(err, uniqueOrderPayment) {
			return domain.ErrPaymentExists
		}
		return err
	}
	return nil
}

func (r *Repository) get(ctx context.Context, query string, args ...any) (*domain.Payment, error) {
	payment := &domain.Payment{}
	if err := sqlx.GetContext(ctx, r.db, payment, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+`
		FROM payments p
		WHERE p.id = $1
		FOR UPDATE
	`, id)
}

// GetForUser returns the payment only when userID owns its order.
func (r *Repository) GetForUser(ctx context.Context, id, userID string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+`
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE p.id = $1 AND o.user_id = $2
	`, id, userID)
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	payments := []domain.Payment{}
	err := sqlx.SelectContext(ctx, r.db, &payments, `SELECT `+paymentColumns+`
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.user_id = $1
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *Repository) Update(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = $3, gateway_response = $4, updated_at = $5, processed_at = $6
		WHERE id = $1
	`, p.ID, p.Status, p.TransactionID, p.GatewayResponse, p.UpdatedAt, p.ProcessedAt)
	return err
}

// RecordWebhook stores a delivery under its idempotency key and reports
// false when the key was already seen.
func (r *Repository) RecordWebhook(ctx context.Context, key, paymentID string, status domain.PaymentStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (idempotency_key, payment_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, paymentID, status)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
