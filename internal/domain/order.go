package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

const (
	DefaultCurrency     = "USD"
	DefaultMaxDownloads = 5
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusPending, OrderStatusCancelled},
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusFailed},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted:  {OrderStatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted,
		OrderStatusFailed, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

type TemplateSummary struct {
	ID    int64  `json:"id" db:"id"`
	Title string `json:"title" db:"title"`
	Slug  string `json:"slug" db:"slug"`
}

type Order struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	TemplateID     int64           `json:"template_id" db:"template_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	Status         OrderStatus     `json:"status" db:"status"`
	DownloadToken  *string         `json:"-" db:"download_token"`
	DownloadCount  int             `json:"download_count" db:"download_count"`
	MaxDownloads   int             `json:"max_downloads" db:"max_downloads"`
	TelegramChatID *int64          `json:"-" db:"telegram_chat_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	Template       TemplateSummary `json:"template" db:"template"`
}

func (o *Order) CanDownload() bool {
	return o.Status == OrderStatusCompleted &&
		o.DownloadCount < o.MaxDownloads &&
		o.DownloadToken != nil && *o.DownloadToken != ""
}

func (o *Order) DownloadsRemaining() int {
	if remaining := o.MaxDownloads - o.DownloadCount; remaining > 0 {
		return remaining
	}
	return 0
}

// Transition moves the order to next. Completing an order stamps
// CompletedAt and mints a download token when none is set.
func (o *Order) Transition(next OrderStatus, now time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order is already %s", ErrInvalidTransition, o.Status)
	}
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, o.Status, next)
	}

	o.Status = next
	o.UpdatedAt = now

	if next == OrderStatusCompleted {
		completedAt := now
		o.CompletedAt = &completedAt
		if o.DownloadToken == nil || *o.DownloadToken == "" {
			token, err := NewDownloadToken()
			if err != nil {
				return err
			}
			o.DownloadToken = &token
		}
	}

	return nil
}

// CheckDownload validates that token may be used against the order.
func (o *Order) CheckDownload(token string) error {
	if o.DownloadToken == nil || *o.DownloadToken != token {
		return ErrDownloadNotFound
	}
	if o.Status != OrderStatusCompleted {
		return ErrOrderNotCompleted
	}
	if o.DownloadCount >= o.MaxDownloads {
		return ErrDownloadLimit
	}
	return nil
}

func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		CanDownload bool `json:"can_download"`
	}{
		order:       order(o),
		CanDownload: o.CanDownload(),
	})
}

// NewDownloadToken returns 32 random bytes encoded as unpadded URL-safe base64.
func NewDownloadToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate download token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
