package api

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldops/internal/auth"
	"fieldops/internal/config"
	"fieldops/internal/lifecycle"
	"fieldops/internal/maintenance"
	"fieldops/internal/metrics"
	"fieldops/internal/store"
	"fieldops/internal/webhooks"
)

type Server struct {
	Store     store.Store
	Engine    *lifecycle.Engine
	Evaluator *maintenance.Evaluator
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Broker    EventBroker
	Config    config.Config
	Logger    *log.Logger
	// Now is the clock handed to date guards.
	Now func() time.Time
}

// NewServer wires the store, engine and event fan-out described by cfg.
// An empty DATABASE_URL selects the in-memory store.
func NewServer(cfg config.Config, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	st, err := store.Open(cfg.DBDriver, cfg.DatabaseURL, cfg.DBMigrate)
	if err != nil {
		return nil, err
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL, logger); err == nil {
			broker = rb
		} else {
			logger.Printf("api: redis broker unavailable, using in-process broker: %v", err)
		}
	}
	pub := webhooks.NewPublisher(st, logger)
	evaluator := maintenance.NewEvaluator(st, maintenance.DefaultRules())
	coordinator := lifecycle.NewCoordinator(st, evaluator, &webhooks.AlertNotifier{Alerts: st, Publisher: pub}, cfg.SideEffectAttempts, logger)
	return &Server{
		Store:     st,
		Engine:    lifecycle.NewEngine(st, st, coordinator, cfg.Lifecycle(), logger),
		Evaluator: evaluator,
		Pub:       pub,
		Auth:      auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret, cfg.AuthJWKSURL),
		Broker:    broker,
		Config:    cfg,
		Logger:    logger,
		Now:       time.Now,
	}, nil
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Operations
	mux.HandleFunc("/v1/operations", s.OperationsHandler)
	mux.HandleFunc("/v1/operations/", s.OperationByIDHandler) // includes /start, /complete, /cancel
	mux.HandleFunc("/v1/availability", s.AvailabilityHandler)

	// Catalog
	mux.HandleFunc("/v1/vehicles/", s.VehiclesHandler) // includes /events/stream
	mux.HandleFunc("/v1/operators/", s.OperatorsHandler)
	mux.HandleFunc("/v1/fields/", s.FieldsHandler)

	// Alerts and webhooks
	mux.HandleFunc("/v1/alerts", s.AlertsHandler)
	mux.HandleFunc("/v1/alerts/", s.AlertByIDHandler)
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

	// GraphQL WebSocket subscriptions endpoint
	mux.HandleFunc("/graphql/ws", s.GraphQLWSHandler)

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug/vars", s.DebugJSON)
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.Handle("/docs/", s.DocsHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts, s.Logger)
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
	if c, ok := s.Broker.(io.Closer); ok {
		_ = c.Close()
	}
	if c, ok := s.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
