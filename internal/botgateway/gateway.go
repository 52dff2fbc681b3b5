// Package botgateway talks to the chatbot platform: it provisions demo bots
// and delivers invoices and messages to buyers.
package botgateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type DemoRequest struct {
	TemplateID   int64  `json:"template_id"`
	TemplateSlug string `json:"template_slug"`
	UserHandle   string `json:"user_handle"`
}

type Demo struct {
	BotUsername string    `json:"bot_username"`
	DemoURL     string    `json:"demo_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Commands    []string  `json:"commands"`
}

type Invoice struct {
	ChatID      int64           `json:"chat_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Payload     string          `json:"payload"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type Receipt struct {
	MessageID int `json:"message_id"`
}

// Gateway is the chatbot platform. Any returned error means the call failed.
type Gateway interface {
	CreateDemo(ctx context.Context, req DemoRequest) (*Demo, error)
	SendInvoice(ctx context.Context, invoice Invoice) (*Receipt, error)
	SendMessage(ctx context.Context, chatID int64, text string) (*Receipt, error)
}

var defaultDemoCommands = []string{"/start", "/help", "/demo"}
