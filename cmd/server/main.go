// Package main is the entry point for the Robo DeFi Advisor, an HTTP service
// that picks the best pool for a set of user criteria and explains the choice.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/circuitbreaker"
	"github.com/truptisatsangi/robo-defi-advisor/internal/config"
	"github.com/truptisatsangi/robo-defi-advisor/internal/detached"
	"github.com/truptisatsangi/robo-defi-advisor/internal/engine"
	"github.com/truptisatsangi/robo-defi-advisor/internal/fetch"
	"github.com/truptisatsangi/robo-defi-advisor/internal/otel"
	"golang.org/x/time/rate"
)

const version = "1.0.0"

// Server represents the advisor's HTTP server instance
type Server struct {
	config config.Config

	engine  *engine.Engine
	breaker *circuitbreaker.CircuitBreaker
	runner  *detached.Runner

	metrics  *serverMetrics
	gatherer prometheus.Gatherer

	rateLimit *rate.Limiter
	apiKeys   []string

	server    *http.Server
	startTime time.Time
}

// serverMetrics holds the HTTP layer's Prometheus metrics
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics(reg prometheus.Registerer, breaker *circuitbreaker.CircuitBreaker) *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	reg.MustRegister(
		m.requestCounter,
		m.requestDuration,
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "advisor_circuit_breaker_state",
				Help: "Fact store circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			func() float64 {
				if breaker == nil {
					return 0
				}
				return float64(breaker.GetState())
			},
		),
	)
	return m
}

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogFormat, cfg.LogLevel)

	engineCfg, err := config.LoadEngineConfig(cfg.EngineConfigFile)
	if err != nil {
		logrus.Fatalf("Failed to load engine config: %v", err)
	}

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := engine.NewMetrics(registry)

	breaker := circuitbreaker.New(circuitbreaker.Thresholds{FailureThreshold: cfg.BreakerFailureThreshold}).
		WithResetDelay(cfg.BreakerResetDelay).
		WithTripCallback(engineMetrics.BreakerTripped)

	gateway := fetch.NewFactStoreClient(fetch.FactStoreOptions{
		BaseURL:       cfg.FactStoreURL,
		Timeout:       cfg.FactTimeout,
		Breaker:       breaker,
		OnUnavailable: engineMetrics.FactUnavailable,
	})

	runner := detached.NewRunner(
		detached.WithTimeout(cfg.PersistTimeout),
		detached.WithFailureHook(engineMetrics.DetachedFailed),
	)

	eng, err := engine.New(engine.Options{
		Gateway:        gateway,
		Catalog:        createCatalog(cfg),
		Filter:         engineCfg.FilterOptions(),
		Runner:         runner,
		DefaultTopN:    cfg.DefaultTopN,
		MaxConcurrency: cfg.MaxConcurrency,
		Metrics:        engineMetrics,
	})
	if err != nil {
		logrus.Fatalf("Failed to create engine: %v", err)
	}

	NewServer(cfg, eng, breaker, runner, registry).Start()
}

// createCatalog picks the pool source for the configured catalog mode
func createCatalog(cfg config.Config) fetch.Catalog {
	live := fetch.NewDefiLlamaCatalog(cfg.CatalogURL)

	switch cfg.CatalogMode {
	case config.CatalogStatic:
		return fetch.NewStaticCatalog(nil)
	case config.CatalogBoth:
		return fetch.NewMultiCatalog(
			fetch.NamedCatalog{Name: "defillama", Catalog: live},
			fetch.NamedCatalog{Name: "static", Catalog: fetch.NewStaticCatalog(nil)},
		)
	case config.CatalogLive:
		return live
	default:
		logrus.Warnf("Unknown catalog mode %q, using %s", cfg.CatalogMode, config.CatalogLive)
		return live
	}
}

// NewServer creates a server around a ready engine. Metrics are registered with reg.
func NewServer(cfg config.Config, eng *engine.Engine, breaker *circuitbreaker.CircuitBreaker, runner *detached.Runner, reg *prometheus.Registry) *Server {
	s := &Server{
		config:    cfg,
		engine:    eng,
		breaker:   breaker,
		runner:    runner,
		metrics:   registerMetrics(reg, breaker),
		gatherer:  reg,
		startTime: time.Now(),
	}

	if cfg.RateLimitRPS > 0 {
		s.rateLimit = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	for _, key := range cfg.APIKeys {
		if key != "" {
			s.apiKeys = append(s.apiKeys, key)
		}
	}

	logrus.WithFields(logrus.Fields{
		"port":         cfg.Port,
		"catalog_mode": cfg.CatalogMode,
		"fact_store":   cfg.FactStoreURL,
		"rate_limit":   cfg.RateLimitRPS,
		"api_keys":     len(s.apiKeys),
	}).Info("Server initialized")

	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/advise", s.apiHandler("advise", s.handleAdvise))
	mux.HandleFunc("/v1/evaluate", s.apiHandler("evaluate", s.handleEvaluate))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/circuit", s.handleCircuitStatus)

	return mux
}

// Start begins the HTTP server and blocks until SIGINT or SIGTERM, then shuts
// down the server followed by the background task runner
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	if s.runner != nil {
		s.runner.Stop()
	}

	logrus.Info("Server stopped")
}
