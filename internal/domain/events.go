package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderCompleted = "order.completed"
	TopicPaymentCreated = "payment.created"
	TopicPaymentUpdated = "payment.updated"
)

type OrderEvent struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	TemplateID     int64           `json:"template_id"`
	TemplateTitle  string          `json:"template_title,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         OrderStatus     `json:"status"`
	TelegramChatID int64           `json:"telegram_chat_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

type PaymentEvent struct {
	PaymentID      string          `json:"payment_id"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	TemplateTitle  string          `json:"template_title,omitempty"`
	Method         PaymentMethod   `json:"payment_method"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         PaymentStatus   `json:"status"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	TelegramChatID int64           `json:"telegram_chat_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOrderEvent(o *Order, now time.Time) OrderEvent {
	event := OrderEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		TemplateID:    o.TemplateID,
		TemplateTitle: o.Template.Title,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Status:        o.Status,
		Timestamp:     now,
	}
	if o.TelegramChatID != nil {
		event.TelegramChatID = *o.TelegramChatID
	}
	return event
}

func NewPaymentEvent(p *Payment, o *Order, now time.Time) PaymentEvent {
	event := PaymentEvent{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		UserID:        o.UserID,
		TemplateTitle: o.Template.Title,
		Method:        p.Method,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		Timestamp:     now,
	}
	if o.TelegramChatID != nil {
		event.TelegramChatID = *o.TelegramChatID
	}
	return event
}
