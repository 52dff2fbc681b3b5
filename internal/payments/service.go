package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/orders"
	"github.com/joao-fontenele/botmarket/internal/store"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

const (
	ModeSimulate = "simulate"
	ModeWebhook  = "webhook"
)

type Service struct {
	db        *sqlx.DB
	publisher orders.EventPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	mode      string
	now       func() time.Time
}

// NewService builds the payment service. In ModeSimulate every new payment
// is confirmed right after it is created.
func NewService(db *sqlx.DB, publisher orders.EventPublisher, metrics *telemetry.Metrics, logger *slog.Logger, mode string) *Service {
	if mode == "" {
		mode = ModeSimulate
	}
	return &Service{
		db:        db,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		mode:      mode,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of a status update.
type Result struct {
	Payment  *domain.Payment
	Order    *domain.Order
	Replayed bool

	paymentChanged bool
	orderChanged   bool
}

// Create opens a payment for an order awaiting payment and moves the order
// to pending.
func (s *Service) Create(ctx context.Context, buyer auth.Identity, orderID string, method domain.PaymentMethod) (*domain.Payment, error) {
	if !method.Valid() {
		return nil, domain.ErrInvalidPaymentMethod
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.ErrOrderNotFound
	}

	var payment *domain.Payment
	var order *domain.Order
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		orderRepo := orders.NewRepository(tx)

		var err error
		order, err = orderRepo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != buyer.UserID {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.OrderStatusCreated {
			return domain.ErrOrderNotPayable
		}

		if err := orderRepo.LockPurchase(ctx, order.UserID, order.TemplateID); err != nil {
			return err
		}
		inFlight, err := orderRepo.PurchaseInFlight(ctx, order.UserID, order.TemplateID, order.ID)
		if err != nil {
			return err
		}
		switch inFlight {
		case "":
		case domain.OrderStatusCompleted:
			return domain.ErrAlreadyOwned
		default:
			return domain.ErrPurchaseInProgress
		}

		now := s.now()
		payment = &domain.Payment{
			ID:              uuid.New().String(),
			OrderID:         order.ID,
			Method:          method,
			Amount:          order.Amount,
			Currency:        order.Currency,
			Status:          domain.PaymentStatusPending,
			GatewayResponse: domain.GatewayResponse{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := NewRepository(tx).Insert(ctx, payment); err != nil {
			return err
		}

		if err := order.Transition(domain.OrderStatusPending, now); err != nil {
			return err
		}
		return orderRepo.UpdateLifecycle(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentStatus(ctx, string(payment.Status))
	s.publish(ctx, domain.TopicPaymentCreated, payment, order)
	s.logger.Info("payment created", "payment_id", payment.ID, "order_id", order.ID, "method", method)

	if s.mode != ModeSimulate {
		return payment, nil
	}

	result, err := s.UpdateStatus(ctx, payment.ID, domain.PaymentUpdate{
		Status:        domain.PaymentStatusCompleted,
		TransactionID: method.SyntheticTransactionID(payment.ID),
		GatewayResponse: domain.GatewayResponse{
			"simulated": true,
			"method":    string(method),
		},
	})
	if err != nil {
		return nil, err
	}
	return result.Payment, nil
}

// UpdateStatus applies u to the payment and cascades the resulting state to
// its order. Both rows change in one transaction or not at all.
func (s *Service) UpdateStatus(ctx context.Context, paymentID string, u domain.PaymentUpdate) (*Result, error) {
	return s.update(ctx, paymentID, u, "", nil)
}

// HandleWebhook is UpdateStatus deduplicated by idempotencyKey. A key that
// was already recorded returns the current payment untouched.
func (s *Service) HandleWebhook(ctx context.Context, idempotencyKey, paymentID string, u domain.PaymentUpdate) (*Result, error) {
	return s.update(ctx, paymentID, u, idempotencyKey, nil)
}

// Cancel cancels a pending payment owned by userID. The order fails with it.
func (s *Service) Cancel(ctx context.Context, userID, paymentID string) (*Result, error) {
	return s.update(ctx, paymentID, domain.PaymentUpdate{Status: domain.PaymentStatusCancelled}, "",
		func(p *domain.Payment, o *domain.Order) error {
			if o.UserID != userID {
				return domain.ErrPaymentNotFound
			}
			if p.Status != domain.PaymentStatusPending && p.Status != domain.PaymentStatusCancelled {
				return domain.ErrInvalidTransition
			}
			return nil
		})
}

func (s *Service) update(ctx context.Context, paymentID string, u domain.PaymentUpdate, idempotencyKey string,
	guard func(*domain.Payment, *domain.Order) error,
) (*Result, error) {
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, domain.ErrPaymentNotFound
	}
	if u.Status != "" && !u.Status.Valid() {
		return nil, domain.ErrInvalidPaymentStatus
	}

	result := &Result{}
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		paymentRepo := NewRepository(tx)
		orderRepo := orders.NewRepository(tx)

		payment, err := paymentRepo.GetForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		result.Payment = payment

		if idempotencyKey != "" {
			recorded, err := paymentRepo.RecordWebhook(ctx, idempotencyKey, payment.ID, u.Status)
			if err != nil {
				return err
			}
			if !recorded {
				result.Replayed = true
				return nil
			}
		}

		order, err := orderRepo.GetForUpdate(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		result.Order = order

		if guard != nil {
			if err := guard(payment, order); err != nil {
				return err
			}
		}

		now := s.now()
		result.paymentChanged, err = payment.Apply(u, now)
		if err != nil {
			return err
		}
		if result.paymentChanged {
			result.orderChanged, err = payment.Cascade(order, now)
			if err != nil {
				return err
			}
		}

		if err := paymentRepo.Update(ctx, payment); err != nil {
			return err
		}
		if result.orderChanged {
			return orderRepo.UpdateLifecycle(ctx, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		s.logger.Info("webhook replay ignored", "payment_id", paymentID, "idempotency_key", idempotencyKey)
		return result, nil
	}

	if result.paymentChanged {
		s.metrics.PaymentStatus(ctx, string(result.Payment.Status))
		s.logger.Info("payment status updated", "payment_id", result.Payment.ID,
			"status", result.Payment.Status, "order_status", result.Order.Status)
	}
	if result.paymentChanged || u.TransactionID != "" || len(u.GatewayResponse) > 0 {
		s.publish(ctx, domain.TopicPaymentUpdated, result.Payment, result.Order)
	}
	if result.orderChanged && result.Order.Status == domain.OrderStatusCompleted {
		if err := s.publisher.Publish(ctx, domain.TopicOrderCompleted, result.Order.ID,
			domain.NewOrderEvent(result.Order, s.now())); err != nil {
			s.logger.Error("failed to publish order event", "error", err, "order_id", result.Order.ID)
		}
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, userID, paymentID string) (*domain.Payment, error) {
	if _, err := uuid.Parse(paymentID); err != nil {
		return nil, domain.ErrPaymentNotFound
	}
	payment, err := NewRepository(s.db).GetForUser(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	return NewRepository(s.db).ListByUser(ctx, userID)
}

func (s *Service) publish(ctx context.Context, topic string, payment *domain.Payment, order *domain.Order) {
	if err := s.publisher.Publish(ctx, topic, order.ID, domain.NewPaymentEvent(payment, order, s.now())); err != nil {
		s.logger.Error("failed to publish payment event", "error", err, "topic", topic, "payment_id", payment.ID)
	}
}
