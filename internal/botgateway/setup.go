package botgateway

import (
	"fmt"

	"github.com/joao-fontenele/botmarket/internal/config"
)

// New builds the configured gateway behind a circuit breaker.
func New(cfg config.GatewayConfig) (*Breaker, error) {
	client := NewHTTPClient(cfg.Timeout, cfg.Retries, cfg.RetryBackoff)

	var gateway Gateway
	switch cfg.Mode {
	case config.GatewayModeTelegram:
		tg, err := NewTelegramGateway(TelegramOptions{
			Token:         cfg.BotToken,
			APIURL:        cfg.APIURL,
			ProviderToken: cfg.ProviderToken,
			DemoLifetime:  cfg.DemoLifetime,
			Client:        client,
		})
		if err != nil {
			return nil, err
		}
		gateway = tg
	case config.GatewayModeSim:
		gateway = NewHTTPGateway(cfg.URL, client)
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Mode)
	}

	return NewBreaker(gateway, cfg.MaxFailures, cfg.ResetTimeout), nil
}
