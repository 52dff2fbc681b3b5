package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
)

// InlinePublisher hands events straight to a handler in-process. It stands
// in for Kafka when no brokers are configured.
type InlinePublisher struct {
	handler HandlerFunc
	logger  *slog.Logger
}

// NewInlinePublisher returns a publisher that delivers to handler. A nil
// handler only logs the event.
func NewInlinePublisher(handler HandlerFunc, logger *slog.Logger) *InlinePublisher {
	return &InlinePublisher{handler: handler, logger: logger}
}

func (p *InlinePublisher) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.logger.Debug("event published inline", "topic", topic, "key", key)
	if p.handler == nil {
		return nil
	}
	return p.handler(ctx, topic, data)
}

func (p *InlinePublisher) Close() error { return nil }
