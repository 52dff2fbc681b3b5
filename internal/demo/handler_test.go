package demo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/botgateway"
	"github.com/joao-fontenele/botmarket/internal/catalog"
	"github.com/joao-fontenele/botmarket/internal/domain"
)

type staticCache map[string]*domain.Template

func (c staticCache) GetTemplate(_ context.Context, slug string) (*domain.Template, error) {
	if t, ok := c[slug]; ok {
		return t, nil
	}
	return nil, catalog.ErrCacheMiss
}

func (c staticCache) SetTemplate(context.Context, *domain.Template) error { return nil }

func (c staticCache) DeleteTemplate(context.Context, string) error { return nil }

type fakeGateway struct {
	err error
	got botgateway.DemoRequest
}

func (f *fakeGateway) CreateDemo(_ context.Context, req botgateway.DemoRequest) (*botgateway.Demo, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &botgateway.Demo{BotUsername: "demo_quiz_00ff00ff", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeGateway) SendInvoice(context.Context, botgateway.Invoice) (*botgateway.Receipt, error) {
	return nil, errors.New("not used")
}

func (f *fakeGateway) SendMessage(context.Context, int64, string) (*botgateway.Receipt, error) {
	return nil, errors.New("not used")
}

func setup(gw *fakeGateway) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := staticCache{
		"quiz":    {ID: 1, Slug: "quiz", Active: true, DemoAvailable: true},
		"no-demo": {ID: 2, Slug: "no-demo", Active: true},
	}
	handler := NewHandler(catalog.NewService(nil, cache, logger), gw, nil, time.Second, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/templates/{slug}/demo", func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: "u-1", TelegramUsername: "alice_tg"})
		handler.HandleCreate(w, r.WithContext(ctx))
	})
	return mux
}

func TestHandler_HandleCreate(t *testing.T) {
	t.Run("creates demo for caller's telegram handle", func(t *testing.T) {
		gw := &fakeGateway{}
		rec := httptest.NewRecorder()
		setup(gw).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/templates/quiz/demo", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var got struct {
			Success     bool   `json:"success"`
			BotUsername string `json:"bot_username"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !got.Success || got.BotUsername != "demo_quiz_00ff00ff" {
			t.Errorf("unexpected response: %+v", got)
		}
		if gw.got.UserHandle != "alice_tg" || gw.got.TemplateSlug != "quiz" {
			t.Errorf("unexpected gateway request: %+v", gw.got)
		}
	})

	t.Run("gateway failure answers 503", func(t *testing.T) {
		gw := &fakeGateway{err: errors.New("platform down")}
		rec := httptest.NewRecorder()
		setup(gw).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/templates/quiz/demo", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rec.Code)
		}

		var got map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got["success"] != false {
			t.Errorf("expected success false, got %v", got)
		}
	})

	t.Run("template without demo conflicts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setup(&fakeGateway{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/templates/no-demo/demo", nil))

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})
}
