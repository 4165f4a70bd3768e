package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PortNumber53/storefront/backend/internal/config"
	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/handlers"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	requestlog "github.com/PortNumber53/storefront/backend/internal/middleware"
)

// Deps carries the services mounted on the router. Nil optional services
// leave their routes unregistered.
type Deps struct {
	DB          handlers.Pinger
	Checkout    handlers.CheckoutService
	Stock       handlers.StockAdmin
	Settings    handlers.SettingsService
	Memberships handlers.MembershipService
	Jobs        handlers.JobQueue
	Events      *events.Broadcaster
	Logger      *logger.Logger
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// New constructs an HTTP server using the provided configuration and services.
func New(cfg config.Config, d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestlog.RequestLogger(log))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", handlers.Health(d.DB))

	if d.Checkout != nil {
		router.Post("/api/checkout/quote", handlers.Quote(d.Checkout, log))
		router.Post("/api/checkout/finalize", handlers.Finalize(d.Checkout, log))
		router.Post("/api/checkout/orders", handlers.CreateOrder(d.Checkout, log))
		router.Get("/api/orders/{id}", handlers.GetOrder(d.Checkout, log))
		router.Patch("/api/orders/{id}/status", handlers.UpdateOrderStatus(d.Checkout, log))
		router.Post("/api/inventory/decrement", handlers.DecrementStock(d.Checkout, log))
	}
	if d.Stock != nil {
		router.Put("/api/inventory/quantity", handlers.SetStock(d.Stock, log))
	}

	if d.Settings != nil {
		router.Get("/api/settings", handlers.GetSettings(d.Settings, log))
		router.Put("/api/settings", handlers.UpdateSettings(d.Settings, log))
	}

	if d.Memberships != nil {
		router.Post("/api/memberships", handlers.Subscribe(d.Memberships, log))
		router.Get("/api/memberships/{customerID}/active", handlers.ActiveMembership(d.Memberships, log))
		router.Delete("/api/memberships/{customerID}", handlers.CancelMembership(d.Memberships, log))
	}

	if d.Jobs != nil {
		router.Route("/api/jobs", func(r chi.Router) {
			r.Get("/stats", handlers.GetJobStats(d.Jobs, log))
			r.Get("/pending", handlers.ListPendingJobs(d.Jobs, log))
			r.Post("/{id}/cancel", handlers.CancelJob(d.Jobs, log))
		})
	}

	if d.Events != nil {
		router.Method(http.MethodGet, "/api/events", events.StreamHandler{
			Broadcaster: d.Events,
			KeepAlive:   cfg.EventsKeepAlive,
		})
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, log: log}
}

// Start begins serving HTTP traffic. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
