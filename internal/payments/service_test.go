package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/domain"
)

const (
	testOrderID   = "5f0c6f8e-3c1e-4b8a-9d2e-7f4a1b2c3d4e"
	testPaymentID = "0b7e2d51-8f7a-4c3e-a1d9-6e5f4a3b2c1d"
)

var orderColumns = []string{
	"id", "user_id", "template_id", "amount", "currency", "status", "download_token",
	"download_count", "max_downloads", "telegram_chat_id", "created_at", "updated_at", "completed_at",
	"template.id", "template.title", "template.slug",
}

var paymentColumnNames = []string{
	"id", "order_id", "payment_method", "transaction_id", "amount", "currency",
	"status", "gateway_response", "created_at", "updated_at", "processed_at",
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func orderRow(status domain.OrderStatus, userID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderColumns).AddRow(
		testOrderID, userID, 3, "19.99", "USD", string(status), nil,
		0, 5, int64(4242), now, now, nil,
		3, "Interactive Quiz Bot", "interactive-quiz-bot",
	)
}

func paymentRow(status domain.PaymentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentColumnNames).AddRow(
		testPaymentID, testOrderID, "telegram", "", "19.99", "USD",
		string(status), []byte(`{}`), now, now, nil,
	)
}

func expectPurchaseCheck(mock sqlmock.Sqlmock, inFlight domain.OrderStatus) {
	mock.ExpectExec(`pg_advisory_xact_lock`).WithArgs("purchase:u-1:3").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"status"})
	if inFlight != "" {
		rows.AddRow(string(inFlight))
	}
	mock.ExpectQuery(`SELECT status FROM orders`).WithArgs("u-1", 3, testOrderID).WillReturnRows(rows)
}

func setupService(t *testing.T, mode string) (*Service, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(sqlx.NewDb(db, "postgres"), publisher, nil, logger, mode), mock, publisher
}

func equalTopics(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestService_Create(t *testing.T) {
	buyer := auth.Identity{UserID: "u-1"}

	t.Run("webhook mode leaves payment pending", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE OF o`).WithArgs(testOrderID).WillReturnRows(orderRow(domain.OrderStatusCreated, "u-1"))
		expectPurchaseCheck(mock, "")
		mock.ExpectExec(`INSERT INTO payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		payment, err := svc.Create(context.Background(), buyer, testOrderID, domain.PaymentMethodCryptoBTC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payment.Status != domain.PaymentStatusPending {
			t.Errorf("expected pending, got %s", payment.Status)
		}
		if payment.Amount.String() != "19.99" || payment.Currency != "USD" {
			t.Errorf("expected amount copied from order, got %s %s", payment.Amount, payment.Currency)
		}
		if got := publisher.published(); !equalTopics(got, domain.TopicPaymentCreated) {
			t.Errorf("unexpected events: %v", got)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("simulate mode completes payment and order", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeSimulate)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusCreated, "u-1"))
		expectPurchaseCheck(mock, "")
		mock.ExpectExec(`INSERT INTO payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p\s+WHERE p.id = \$1\s+FOR UPDATE`).WillReturnRows(paymentRow(domain.PaymentStatusPending))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusPending, "u-1"))
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		payment, err := svc.Create(context.Background(), buyer, testOrderID, domain.PaymentMethodTelegram)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payment.Status != domain.PaymentStatusCompleted {
			t.Errorf("expected completed, got %s", payment.Status)
		}
		if !strings.HasPrefix(payment.TransactionID, "tg_") {
			t.Errorf("expected synthetic telegram transaction id, got %q", payment.TransactionID)
		}
		if payment.GatewayResponse["simulated"] != true {
			t.Errorf("expected simulated gateway response, got %v", payment.GatewayResponse)
		}
		if payment.ProcessedAt == nil {
			t.Error("expected processed_at to be stamped")
		}
		want := []string{domain.TopicPaymentCreated, domain.TopicPaymentUpdated, domain.TopicOrderCompleted}
		if got := publisher.published(); !equalTopics(got, want...) {
			t.Errorf("expected events %v, got %v", want, got)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	tests := []struct {
		name   string
		method domain.PaymentMethod
		setup  func(mock sqlmock.Sqlmock)
		want   error
	}{
		{
			name:   "unknown method",
			method: "paypal",
			want:   domain.ErrInvalidPaymentMethod,
		},
		{
			name:   "order of another user",
			method: domain.PaymentMethodTelegram,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusCreated, "u-2"))
				mock.ExpectRollback()
			},
			want: domain.ErrOrderNotFound,
		},
		{
			name:   "order already awaiting payment",
			method: domain.PaymentMethodTelegram,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusPending, "u-1"))
				mock.ExpectRollback()
			},
			want: domain.ErrOrderNotPayable,
		},
		{
			name:   "concurrent second payment",
			method: domain.PaymentMethodTelegram,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusCreated, "u-1"))
				expectPurchaseCheck(mock, "")
				mock.ExpectExec(`INSERT INTO payments`).
					WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_order_id_key"})
				mock.ExpectRollback()
			},
			want: domain.ErrPaymentExists,
		},
		{
			name:   "template already owned through another order",
			method: domain.PaymentMethodTelegram,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusCreated, "u-1"))
				expectPurchaseCheck(mock, domain.OrderStatusCompleted)
				mock.ExpectRollback()
			},
			want: domain.ErrAlreadyOwned,
		},
		{
			name:   "another order for the template is being paid",
			method: domain.PaymentMethodCryptoETH,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusCreated, "u-1"))
				expectPurchaseCheck(mock, domain.OrderStatusPending)
				mock.ExpectRollback()
			},
			want: domain.ErrPurchaseInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, publisher := setupService(t, ModeWebhook)
			if tt.setup != nil {
				tt.setup(mock)
			}

			_, err := svc.Create(context.Background(), buyer, testOrderID, tt.method)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if len(publisher.published()) != 0 {
				t.Errorf("expected no events, got %v", publisher.published())
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("database expectations were not met: %v", err)
			}
		})
	}
}

func TestService_UpdateStatus(t *testing.T) {
	t.Run("failed payment fails the order", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WithArgs(testPaymentID).WillReturnRows(paymentRow(domain.PaymentStatusPending))
		mock.ExpectQuery(`FOR UPDATE OF o`).WithArgs(testOrderID).WillReturnRows(orderRow(domain.OrderStatusPending, "u-1"))
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := svc.UpdateStatus(context.Background(), testPaymentID, domain.PaymentUpdate{Status: domain.PaymentStatusFailed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Order.Status != domain.OrderStatusFailed {
			t.Errorf("expected order failed, got %s", result.Order.Status)
		}
		if got := publisher.published(); !equalTopics(got, domain.TopicPaymentUpdated) {
			t.Errorf("unexpected events: %v", got)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("repeating the current status is a no-op", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusFailed))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusFailed, "u-1"))
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := svc.UpdateStatus(context.Background(), testPaymentID, domain.PaymentUpdate{Status: domain.PaymentStatusFailed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Payment.Status != domain.PaymentStatusFailed {
			t.Errorf("expected failed, got %s", result.Payment.Status)
		}
		if len(publisher.published()) != 0 {
			t.Errorf("expected no events, got %v", publisher.published())
		}
	})

	t.Run("transition out of a terminal state is rejected", func(t *testing.T) {
		svc, mock, _ := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusCancelled))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusFailed, "u-1"))
		mock.ExpectRollback()

		_, err := svc.UpdateStatus(context.Background(), testPaymentID, domain.PaymentUpdate{Status: domain.PaymentStatusCompleted})
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("completing a second order for an owned template conflicts", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusPending))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusPending, "u-1"))
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_completed_user_template_key"})
		mock.ExpectRollback()

		_, err := svc.UpdateStatus(context.Background(), testPaymentID, domain.PaymentUpdate{Status: domain.PaymentStatusCompleted})
		if !errors.Is(err, domain.ErrAlreadyOwned) {
			t.Errorf("expected ErrAlreadyOwned, got %v", err)
		}
		if len(publisher.published()) != 0 {
			t.Errorf("expected no events, got %v", publisher.published())
		}
	})

	tests := []struct {
		name      string
		paymentID string
		update    domain.PaymentUpdate
		want      error
	}{
		{name: "unknown status", paymentID: testPaymentID, update: domain.PaymentUpdate{Status: "settled"}, want: domain.ErrInvalidPaymentStatus},
		{name: "malformed id", paymentID: "nope", update: domain.PaymentUpdate{Status: domain.PaymentStatusFailed}, want: domain.ErrPaymentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := setupService(t, ModeWebhook)

			if _, err := svc.UpdateStatus(context.Background(), tt.paymentID, tt.update); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_HandleWebhook(t *testing.T) {
	t.Run("replayed key does not mutate", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusCompleted))
		mock.ExpectExec(`INSERT INTO webhook_events`).
			WithArgs("evt-1", testPaymentID, "failed").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		result, err := svc.HandleWebhook(context.Background(), "evt-1", testPaymentID, domain.PaymentUpdate{Status: domain.PaymentStatusFailed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Replayed {
			t.Error("expected replayed result")
		}
		if result.Payment.Status != domain.PaymentStatusCompleted {
			t.Errorf("expected untouched completed payment, got %s", result.Payment.Status)
		}
		if len(publisher.published()) != 0 {
			t.Errorf("expected no events, got %v", publisher.published())
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("first delivery applies update", func(t *testing.T) {
		svc, mock, publisher := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusPending))
		mock.ExpectExec(`INSERT INTO webhook_events`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusPending, "u-1"))
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := svc.HandleWebhook(context.Background(), "evt-2", testPaymentID, domain.PaymentUpdate{
			Status:        domain.PaymentStatusCompleted,
			TransactionID: "prov-123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Replayed {
			t.Error("expected a fresh delivery")
		}
		if result.Order.Status != domain.OrderStatusCompleted || result.Order.DownloadToken == nil {
			t.Errorf("expected completed order with token, got %+v", result.Order)
		}
		want := []string{domain.TopicPaymentUpdated, domain.TopicOrderCompleted}
		if got := publisher.published(); !equalTopics(got, want...) {
			t.Errorf("expected events %v, got %v", want, got)
		}
	})
}

func TestService_Cancel(t *testing.T) {
	t.Run("pending payment fails the order", func(t *testing.T) {
		svc, mock, _ := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusPending))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusPending, "u-1"))
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := svc.Cancel(context.Background(), "u-1", testPaymentID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Payment.Status != domain.PaymentStatusCancelled || result.Order.Status != domain.OrderStatusFailed {
			t.Errorf("unexpected states: payment %s order %s", result.Payment.Status, result.Order.Status)
		}
	})

	t.Run("payment of another user", func(t *testing.T) {
		svc, mock, _ := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusPending))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusPending, "u-2"))
		mock.ExpectRollback()

		if _, err := svc.Cancel(context.Background(), "u-1", testPaymentID); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Errorf("expected ErrPaymentNotFound, got %v", err)
		}
	})

	t.Run("completed payment cannot be cancelled", func(t *testing.T) {
		svc, mock, _ := setupService(t, ModeWebhook)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM payments p`).WillReturnRows(paymentRow(domain.PaymentStatusCompleted))
		mock.ExpectQuery(`FOR UPDATE OF o`).WillReturnRows(orderRow(domain.OrderStatusCompleted, "u-1"))
		mock.ExpectRollback()

		if _, err := svc.Cancel(context.Background(), "u-1", testPaymentID); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}
