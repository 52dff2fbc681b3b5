package botgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPGateway calls a bot platform service over HTTP.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, client *http.Client) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type messageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (g *HTTPGateway) CreateDemo(ctx context.Context, req DemoRequest) (*Demo, error) {
	var demo Demo
	if err := g.postJSON(ctx, "/demos", req, &demo); err != nil {
		return nil, err
	}
	return &demo, nil
}

func (g *HTTPGateway) SendInvoice(ctx context.Context, invoice Invoice) (*Receipt, error) {
	var receipt Receipt
	if err := g.postJSON(ctx, "/invoices", invoice, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (g *HTTPGateway) SendMessage(ctx context.Context, chatID int64, text string) (*Receipt, error) {
	var receipt Receipt
	if err := g.postJSON(ctx, "/messages", messageRequest{ChatID: chatID, Text: text}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (g *HTTPGateway) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("bot gateway %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bot gateway %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
