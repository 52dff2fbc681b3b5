package botsim

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/botmarket/internal/botgateway"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	handler := NewHandler(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /demos", handler.HandleCreateDemo)
	mux.HandleFunc("POST /invoices", handler.HandleSendInvoice)
	mux.HandleFunc("POST /messages", handler.HandleSendMessage)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHandler_WithHTTPGateway(t *testing.T) {
	server := newTestServer(t, Options{})
	gw := botgateway.NewHTTPGateway(server.URL, botgateway.NewHTTPClient(time.Second, 0, 0))
	ctx := context.Background()

	demo, err := gw.CreateDemo(ctx, botgateway.DemoRequest{TemplateID: 1, TemplateSlug: "quiz", UserHandle: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(demo.BotUsername, "demo_quiz_") || demo.DemoURL != "https://t.me/"+demo.BotUsername {
		t.Errorf("unexpected demo: %+v", demo)
	}

	first, err := gw.SendInvoice(ctx, botgateway.Invoice{ChatID: 7, Amount: decimal.RequireFromString("19.99"), Currency: "USD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := gw.SendMessage(ctx, 7, "thanks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.MessageID <= first.MessageID {
		t.Errorf("expected increasing message ids, got %d then %d", first.MessageID, second.MessageID)
	}
}

func TestHandler_Validation(t *testing.T) {
	server := newTestServer(t, Options{})

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "demo without slug", path: "/demos", body: `{"user_handle":"alice"}`},
		{name: "invoice without chat", path: "/invoices", body: `{"amount":"1.00","currency":"USD"}`},
		{name: "invoice with zero amount", path: "/invoices", body: `{"chat_id":1,"amount":"0","currency":"USD"}`},
		{name: "invoice with bad currency", path: "/invoices", body: `{"chat_id":1,"amount":"1.00","currency":"DOLLARS"}`},
		{name: "empty message", path: "/messages", body: `{"chat_id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+tt.path, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestHandler_FailureRate(t *testing.T) {
	server := newTestServer(t, Options{FailureRate: 1})

	resp, err := http.Post(server.URL+"/messages", "application/json", strings.NewReader(`{"chat_id":1,"text":"hi"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", resp.StatusCode)
	}
}
