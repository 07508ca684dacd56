package main

import (
	"net/http"
	"time"

	"github.com/diewo77/invoice-engine/httpx"
	"github.com/diewo77/invoice-engine/internal/handlers"
	"github.com/diewo77/invoice-engine/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux     *http.ServeMux
	handler http.Handler
	deps    *Deps
	log     zerolog.Logger
}

// NewApp creates a new application with all routes configured.
func NewApp(deps *Deps) *App {
	app := &App{
		mux:  http.NewServeMux(),
		deps: deps,
		log:  logger.WithComponent("http"),
	}
	app.setupRoutes()
	app.handler = middleware.RequestID(middleware.RealIP(app.withLogging(middleware.Recoverer(app.mux))))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) setupRoutes() {
	a.mux.HandleFunc("GET /healthz", a.health)
	a.mux.Handle("GET /metrics", promhttp.HandlerFor(a.deps.Registry, promhttp.HandlerOpts{}))

	ih := handlers.NewInvoiceHandler(a.deps.Invoices, logger.WithComponent("invoices"))
	ch := handlers.NewContactHandler(a.deps.Contacts, logger.WithComponent("contacts"))
	sh := handlers.NewSettingsHandler(a.deps.Tenants, logger.WithComponent("settings"))

	// Invoices
	a.mux.Handle("GET /invoices", a.tenant(ih.List))
	a.mux.Handle("POST /invoices", a.tenant(ih.Create))
	a.mux.Handle("GET /invoices/{id}", a.tenant(ih.Get))
	a.mux.Handle("PUT /invoices/{id}", a.tenant(ih.Update))
	a.mux.Handle("DELETE /invoices/{id}", a.tenant(ih.Delete))
	a.mux.Handle("GET /invoices/{id}/activity", a.tenant(ih.Activity))
	a.mux.Handle("POST /invoices/{id}/send", a.tenant(ih.Send))
	a.mux.Handle("POST /invoices/{id}/schedule", a.tenant(ih.Schedule))
	a.mux.Handle("POST /invoices/{id}/cancel", a.tenant(ih.Cancel))
	a.mux.Handle("POST /invoices/{id}/payments", a.tenant(ih.RecordPayment))
	a.mux.Handle("POST /invoices/{id}/payment-intent", a.tenant(ih.PaymentIntent))
	a.mux.Handle("POST /invoices/{id}/recurrence/tick", a.tenant(ih.TickRecurrence))

	// Contacts
	a.mux.Handle("GET /contacts", a.tenant(ch.List))
	a.mux.Handle("POST /contacts", a.tenant(ch.Create))
	a.mux.Handle("GET /contacts/{id}", a.tenant(ch.Get))
	a.mux.Handle("PUT /contacts/{id}", a.tenant(ch.Update))

	// Tenant settings
	a.mux.Handle("GET /settings", a.tenant(sh.Get))
	a.mux.Handle("PUT /settings", a.tenant(sh.Update))
}

// tenant wraps a handler to require an authenticated tenant.
func (a *App) tenant(h http.HandlerFunc) http.Handler {
	return a.deps.Auth.RequireTenant(h)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.deps.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withLogging adds request logging middleware.
func (a *App) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
