package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custommw "github.com/fotastore/server/internal/middleware"
	"github.com/fotastore/server/internal/observability"
	"github.com/fotastore/server/internal/services"
)

// RouterConfig carries everything the HTTP API is built from
type RouterConfig struct {
	Scope        *services.AccountScope
	Store        *services.UpgradeStore
	Log          *services.TransactionLog
	Hub          *services.WebSocketHub
	APIKeyHash   string
	APIKeyHeader string
	// HTTPMetrics is optional
	HTTPMetrics *observability.HTTPMetrics
}

// NewRouter wires the HTTP API
func NewRouter(cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(cfg.Scope)
	accountHandler := NewAccountHandler(cfg.Scope)
	upgradeHandler := NewUpgradeHandler(cfg.Store)
	transactionHandler := NewTransactionHandler(cfg.Log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware())
	if cfg.HTTPMetrics != nil {
		r.Use(observability.MetricsMiddleware(cfg.HTTPMetrics))
	}
	r.Use(custommw.APIKeyAuth(cfg.APIKeyHash, cfg.APIKeyHeader))

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", VersionHandler)

	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", accountHandler.GetSession)
		r.Put("/", accountHandler.SetSession)
		r.Delete("/", accountHandler.ClearSession)
	})

	r.Route("/api/accounts", func(r chi.Router) {
		r.Get("/", accountHandler.ListAccounts)
		r.Post("/", accountHandler.CreateAccount)
		r.Post("/current/reset", accountHandler.ResetCurrent)
		r.Delete("/{id}", accountHandler.DeleteAccount)
	})

	r.Route("/api/upgrades", func(r chi.Router) {
		r.Get("/", upgradeHandler.ListUpgrades)
		r.Get("/stale", upgradeHandler.ListStale)
		r.Get("/{deviceHid}", upgradeHandler.GetUpgrade)
		r.Put("/{deviceHid}", upgradeHandler.PutUpgrade)
		r.Delete("/{deviceHid}", upgradeHandler.DeleteUpgrade)
		r.Post("/{deviceHid}/cancel", upgradeHandler.CancelUpgrade)
	})

	r.Route("/api/transactions", func(r chi.Router) {
		r.Get("/", transactionHandler.ListPending)
		r.Post("/", transactionHandler.AddTransaction)
		r.Delete("/", transactionHandler.ClearTransactions)
		r.Delete("/{transactionHid}", transactionHandler.RemoveTransaction)
	})

	if cfg.Hub != nil {
		wsHandler := NewWebSocketHandler(cfg.Hub, cfg.Scope)
		r.Get("/api/ws", wsHandler.HandleConnection)
	}

	return r
}
