package botgateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramGateway delivers invoices and messages through the Telegram Bot
// API. Demo bots are not provisioned remotely; their handles are derived
// locally.
type TelegramGateway struct {
	bot           *tele.Bot
	providerToken string
	demoLifetime  time.Duration
	now           func() time.Time
}

type TelegramOptions struct {
	Token         string
	APIURL        string
	ProviderToken string
	DemoLifetime  time.Duration
	Client        *http.Client
}

func NewTelegramGateway(opts TelegramOptions) (*TelegramGateway, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		URL:     opts.APIURL,
		Client:  opts.Client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	lifetime := opts.DemoLifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &TelegramGateway{
		bot:           bot,
		providerToken: opts.ProviderToken,
		demoLifetime:  lifetime,
		now:           time.Now,
	}, nil
}

func (g *TelegramGateway) CreateDemo(_ context.Context, req DemoRequest) (*Demo, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("generate demo suffix: %w", err)
	}
	username := fmt.Sprintf("demo_%s_%s", req.TemplateSlug, hex.EncodeToString(suffix))

	return &Demo{
		BotUsername: username,
		DemoURL:     "https://t.me/" + username,
		ExpiresAt:   g.now().UTC().Add(g.demoLifetime),
		Commands:    defaultDemoCommands,
	}, nil
}

func (g *TelegramGateway) SendInvoice(_ context.Context, invoice Invoice) (*Receipt, error) {
	msg, err := g.bot.Send(tele.ChatID(invoice.ChatID), &tele.Invoice{
		Title:       invoice.Title,
		Description: invoice.Description,
		Payload:     invoice.Payload,
		Currency:    invoice.Currency,
		Token:       g.providerToken,
		Prices: []tele.Price{{
			Label:  invoice.Title,
			Amount: int(invoice.Amount.Shift(2).IntPart()),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: send invoice: %w", err)
	}
	return &Receipt{MessageID: msg.ID}, nil
}

func (g *TelegramGateway) SendMessage(_ context.Context, chatID int64, text string) (*Receipt, error) {
	msg, err := g.bot.Send(tele.ChatID(chatID), text)
	if err != nil {
		return nil, fmt.Errorf("telegram: send message: %w", err)
	}
	return &Receipt{MessageID: msg.ID}, nil
}
