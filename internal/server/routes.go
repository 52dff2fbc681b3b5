// Package server assembles the marketplace HTTP API.
package server

import (
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/catalog"
	"github.com/joao-fontenele/botmarket/internal/demo"
	"github.com/joao-fontenele/botmarket/internal/httpx"
	"github.com/joao-fontenele/botmarket/internal/orders"
	"github.com/joao-fontenele/botmarket/internal/payments"
	"github.com/joao-fontenele/botmarket/internal/reviews"
	"github.com/joao-fontenele/botmarket/internal/telemetry"
)

type Deps struct {
	DB       *sqlx.DB
	Auth     *auth.Authenticator
	Catalog  *catalog.Handler
	Reviews  *reviews.Handler
	Demo     *demo.Handler
	Orders   *orders.Handler
	Payments *payments.Handler
	Webhooks *payments.WebhookHandler
	Metrics  http.Handler
	Logger   *slog.Logger
}

// NewMux registers every marketplace route. Metrics is optional.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
	}
	user := d.Auth.Require
	admin := d.Auth.RequireAdmin

	route("GET /api/categories", d.Catalog.HandleListCategories)
	route("GET /api/categories/{slug}", d.Catalog.HandleGetCategory)
	route("GET /api/templates", d.Catalog.HandleListTemplates)
	route("GET /api/templates/popular", d.Catalog.HandlePopular)
	route("GET /api/templates/{slug}", d.Catalog.HandleGetTemplate)
	route("GET /api/templates/{slug}/reviews", d.Reviews.HandleList)
	route("POST /api/templates/{slug}/reviews", user(d.Reviews.HandleCreate))
	route("POST /api/templates/{slug}/demo", user(d.Demo.HandleCreate))
	route("GET /api/stats", d.Catalog.HandleStats)
	route("PATCH /api/admin/templates/{slug}", admin(d.Catalog.HandleUpdateTemplate))

	route("POST /api/orders", user(d.Orders.HandleCreate))
	route("GET /api/orders", user(d.Orders.HandleList))
	route("GET /api/orders/{id}", user(d.Orders.HandleGet))
	route("POST /api/orders/{id}/cancel", user(d.Orders.HandleCancel))
	route("GET /api/orders/{id}/download", user(d.Orders.HandleDownloadLink))
	route("GET /orders/download/{token}", user(d.Orders.HandleDownload))

	route("POST /api/payments", user(d.Payments.HandleCreate))
	route("GET /api/payments", user(d.Payments.HandleList))
	route("GET /api/payments/{id}", user(d.Payments.HandleGet))
	route("POST /api/payments/{id}/cancel", user(d.Payments.HandleCancel))
	route("PATCH /api/admin/payments/{id}/status", admin(d.Payments.HandleUpdateStatus))
	route("POST /webhooks/payments", d.Webhooks.HandlePayment)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			d.Logger.Error("health check failed", "error", err)
			httpx.WriteJSON(w, d.Logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, d.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	return mux
}
