package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// OrderStatus is the order state a payment in status s drives its order to.
func (s PaymentStatus) OrderStatus() (OrderStatus, bool) {
	switch s {
	case PaymentStatusProcessing:
		return OrderStatusProcessing, true
	case PaymentStatusCompleted:
		return OrderStatusCompleted, true
	case PaymentStatusFailed, PaymentStatusCancelled:
		return OrderStatusFailed, true
	case PaymentStatusRefunded:
		return OrderStatusRefunded, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentMethodTelegram   PaymentMethod = "telegram"
	PaymentMethodCryptoBTC  PaymentMethod = "crypto_btc"
	PaymentMethodCryptoETH  PaymentMethod = "crypto_eth"
	PaymentMethodCryptoUSDT PaymentMethod = "crypto_usdt"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodTelegram, PaymentMethodCryptoBTC, PaymentMethodCryptoETH, PaymentMethodCryptoUSDT:
		return true
	}
	return false
}

// SyntheticTransactionID is the transaction reference recorded for
// payments confirmed without an external provider.
func (m PaymentMethod) SyntheticTransactionID(paymentID string) string {
	if m == PaymentMethodTelegram {
		return "tg_" + paymentID
	}
	return "crypto_" + paymentID
}

// GatewayResponse is the opaque provider payload stored as JSONB.
type GatewayResponse map[string]any

func (g GatewayResponse) Value() (driver.Value, error) {
	if g == nil {
		return "{}", nil
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (g *GatewayResponse) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*g = GatewayResponse{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan gateway response: unsupported type %T", src)
	}
	if len(data) == 0 {
		*g = GatewayResponse{}
		return nil
	}
	return json.Unmarshal(data, g)
}

type Payment struct {
	ID              string          `json:"id" db:"id"`
	OrderID         string          `json:"order_id" db:"order_id"`
	Method          PaymentMethod   `json:"payment_method" db:"payment_method"`
	TransactionID   string          `json:"transaction_id" db:"transaction_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	Status          PaymentStatus   `json:"status" db:"status"`
	GatewayResponse GatewayResponse `json:"gateway_response" db:"gateway_response"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

// PaymentUpdate carries the partial fields accepted by a status update.
type PaymentUpdate struct {
	Status          PaymentStatus
	TransactionID   string
	GatewayResponse GatewayResponse
}

// Apply mutates the payment according to u and reports whether the status
// changed. Re-applying the current status is a no-op for the status.
func (p *Payment) Apply(u PaymentUpdate, now time.Time) (bool, error) {
	if u.Status != "" && !u.Status.Valid() {
		return false, ErrInvalidPaymentStatus
	}

	changed := false
	if u.Status != "" && u.Status != p.Status {
		if p.Status.Terminal() {
			return false, fmt.Errorf("%w: payment is already %s", ErrInvalidTransition, p.Status)
		}
		if !p.Status.CanTransitionTo(u.Status) {
			return false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, p.Status, u.Status)
		}
		p.Status = u.Status
		changed = true
		if u.Status == PaymentStatusCompleted {
			processedAt := now
			p.ProcessedAt = &processedAt
		}
	}

	if u.TransactionID != "" {
		p.TransactionID = u.TransactionID
	}
	if len(u.GatewayResponse) > 0 {
		if p.GatewayResponse == nil {
			p.GatewayResponse = GatewayResponse{}
		}
		for k, v := range u.GatewayResponse {
			p.GatewayResponse[k] = v
		}
	}
	p.UpdatedAt = now

	return changed, nil
}

// Cascade moves order to the state implied by the payment's status.
// It reports whether the order changed.
func (p *Payment) Cascade(order *Order, now time.Time) (bool, error) {
	target, ok := p.Status.OrderStatus()
	if !ok || order.Status == target {
		return false, nil
	}
	if err := order.Transition(target, now); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return false, fmt.Errorf("%w: payment %s cannot move order from %s", ErrInvalidTransition, p.Status, order.Status)
		}
		return false, err
	}
	return true, nil
}
