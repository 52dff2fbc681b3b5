package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/catalog"
	"github.com/joao-fontenele/botmarket/internal/domain"
	"github.com/joao-fontenele/botmarket/internal/store"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

const downloadLinkTTL = 24 * time.Hour

// EventPublisher is satisfied by messaging.Producer and messaging.InlinePublisher.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// TemplateInvalidator drops cached template details. catalog.Service satisfies it.
type TemplateInvalidator interface {
	InvalidateTemplate(ctx context.Context, slug string)
}

type Options struct {
	Currency     string
	MaxDownloads int
	// Templates is told about download count changes; nil skips invalidation.
	Templates TemplateInvalidator
}

type Service struct {
	db        *sqlx.DB
	publisher EventPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

func NewService(db *sqlx.DB, publisher EventPublisher, metrics *telemetry.Metrics, logger *slog.Logger, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = domain.DefaultCurrency
	}
	if opts.MaxDownloads <= 0 {
		opts.MaxDownloads = domain.DefaultMaxDownloads
	}
	return &Service{
		db:        db,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens an order for templateID at the template's current price.
func (s *Service) Create(ctx context.Context, buyer auth.Identity, templateID int64) (*domain.Order, error) {
	if templateID <= 0 {
		return nil, domain.ErrInvalidTemplateID
	}

	var order *domain.Order
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		template, err := catalog.NewRepository(tx).GetTemplateForPurchase(ctx, templateID)
		if err != nil {
			return err
		}
		if template == nil {
			return domain.ErrTemplateNotFound
		}
		if !template.Active {
			return domain.ErrTemplateInactive
		}

		repo := NewRepository(tx)
		if err := repo.LockPurchase(ctx, buyer.UserID, templateID); err != nil {
			return err
		}
		owned, err := repo.HasCompleted(ctx, buyer.UserID, templateID)
		if err != nil {
			return err
		}
		if owned {
			return domain.ErrAlreadyOwned
		}

		now := s.now()
		order = &domain.Order{
			ID:           uuid.New().String(),
			UserID:       buyer.UserID,
			TemplateID:   template.ID,
			Amount:       template.Price,
			Currency:     s.opts.Currency,
			Status:       domain.OrderStatusCreated,
			MaxDownloads: s.opts.MaxDownloads,
			CreatedAt:    now,
			UpdatedAt:    now,
			Template: domain.TemplateSummary{
				ID:    template.ID,
				Title: template.Title,
				Slug:  template.Slug,
			},
		}
		if buyer.TelegramChatID != 0 {
			chatID := buyer.TelegramChatID
			order.TelegramChatID = &chatID
		}
		return repo.Insert(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(ctx)
	s.publish(ctx, domain.TopicOrderCreated, order)

	s.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "template_id", order.TemplateID)
	return order, nil
}

// Cancel cancels an order still awaiting payment. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.ErrOrderNotFound
	}

	var order *domain.Order
	changed := false
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		var err error
		order, err = repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return domain.ErrOrderNotFound
		}

		switch order.Status {
		case domain.OrderStatusCancelled:
			return nil
		case domain.OrderStatusCreated:
		default:
			return domain.ErrOrderNotCancellable
		}

		if err := order.Transition(domain.OrderStatusCancelled, s.now()); err != nil {
			return err
		}
		changed = true
		return repo.UpdateLifecycle(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.OrderCancelled(ctx)
		s.publish(ctx, domain.TopicOrderCancelled, order)
		s.logger.Info("order cancelled", "order_id", order.ID, "user_id", userID)
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.ErrOrderNotFound
	}
	order, err := NewRepository(s.db).GetForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return NewRepository(s.db).ListByUser(ctx, userID)
}

type DownloadLink struct {
	DownloadURL        string    `json:"download_url"`
	Token              string    `json:"token"`
	ExpiresAt          time.Time `json:"expires_at"`
	DownloadsRemaining int       `json:"downloads_remaining"`
}

// DownloadLink describes where a completed order can be downloaded.
// ExpiresAt is advisory; only the download ceiling is enforced.
func (s *Service) DownloadLink(ctx context.Context, userID, orderID string) (*DownloadLink, error) {
	order, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusCompleted || order.DownloadToken == nil {
		return nil, domain.ErrOrderNotCompleted
	}

	return &DownloadLink{
		DownloadURL:        "/orders/download/" + *order.DownloadToken,
		Token:              *order.DownloadToken,
		ExpiresAt:          s.now().Add(downloadLinkTTL),
		DownloadsRemaining: order.DownloadsRemaining(),
	}, nil
}

// Download is a consumed download: the order after the increment and the
// template file to serve.
type Download struct {
	Order    *domain.Order
	Template *domain.Template
}

// Download consumes one download of the order identified by token.
func (s *Service) Download(ctx context.Context, userID, token string) (*Download, error) {
	var result *Download
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)

		order, err := repo.GetByTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return domain.ErrDownloadNotFound
		}
		if err := order.CheckDownload(token); err != nil {
			return err
		}

		count, err := repo.IncrementDownload(ctx, order.ID)
		if err != nil {
			return err
		}
		order.DownloadCount = count

		templates := catalog.NewRepository(tx)
		if err := templates.IncrementDownloads(ctx, order.TemplateID); err != nil {
			return err
		}
		template, err := templates.GetTemplateForPurchase(ctx, order.TemplateID)
		if err != nil {
			return err
		}
		if template == nil {
			return domain.ErrTemplateNotFound
		}

		result = &Download{Order: order, Template: template}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.opts.Templates != nil {
		s.opts.Templates.InvalidateTemplate(ctx, result.Template.Slug)
	}
	s.metrics.Download(ctx)
	s.logger.Info("template downloaded", "order_id", result.Order.ID, "user_id", userID,
		"downloads_remaining", result.Order.DownloadsRemaining())
	return result, nil
}

func (s *Service) publish(ctx context.Context, topic string, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, order.ID, domain.NewOrderEvent(order, s.now())); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "topic", topic, "order_id", order.ID)
	}
}
