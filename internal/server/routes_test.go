package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/auth"
)

func newTestMux(t *testing.T) (*http.ServeMux, sqlmock.Sqlmock, *auth.Authenticator) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := auth.NewAuthenticator("test-secret", logger)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics")
	})

	mux := NewMux(Deps{
		DB:      sqlx.NewDb(db, "postgres"),
		Auth:    authn,
		Metrics: metrics,
		Logger:  logger,
	})
	return mux, mock, authn
}

func TestNewMux_Health(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		mux, mock, _ := newTestMux(t)
		mock.ExpectPing()

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		mux, mock, _ := newTestMux(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}
	})
}

func TestNewMux_Auth(t *testing.T) {
	mux, _, authn := newTestMux(t)

	userToken, err := authn.Issue(auth.Identity{UserID: "u-1"}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"orders need a token", http.MethodGet, "/api/orders", "", http.StatusUnauthorized},
		{"payments need a token", http.MethodPost, "/api/payments", "", http.StatusUnauthorized},
		{"download needs a token", http.MethodGet, "/orders/download/abc", "", http.StatusUnauthorized},
		{"review needs a token", http.MethodPost, "/api/templates/quiz/reviews", "", http.StatusUnauthorized},
		{"admin template edit needs admin", http.MethodPatch, "/api/admin/templates/quiz", userToken, http.StatusForbidden},
		{"admin payment status needs admin", http.MethodPatch, "/api/admin/payments/p-1/status", userToken, http.StatusForbidden},
		{"wrong method", http.MethodDelete, "/api/orders", userToken, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestNewMux_Metrics(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Errorf("unexpected metrics response: %d %q", rec.Code, rec.Body.String())
	}
}
