package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"
	"github.com/slurm-web/console/internal/mockgateway"
	"github.com/slurm-web/console/pkg/base"
)

// WebConfig makes HTTP web config from CLI args.
type WebConfig struct {
	Addresses        []string
	WebSystemdSocket bool
	WebConfigFile    string
}

// Config makes a server config.
type Config struct {
	Logger         *slog.Logger
	Web            WebConfig
	Anonymous      bool
	LoginRateLimit int
}

// MockGatewayServer struct implements HTTP server of the mock gateway.
type MockGatewayServer struct {
	logger    *slog.Logger
	server    *http.Server
	webConfig *web.FlagConfig
}

// NewMockGatewayServer creates new MockGatewayServer struct instance.
func NewMockGatewayServer(c *Config) *MockGatewayServer {
	router := mux.NewRouter()
	server := &MockGatewayServer{
		logger: c.Logger,
		server: &http.Server{
			Addr:              c.Web.Addresses[0],
			Handler:           router,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
		},
		webConfig: &web.FlagConfig{
			WebListenAddresses: &c.Web.Addresses,
			WebSystemdSocket:   &c.Web.WebSystemdSocket,
			WebConfigFile:      &c.Web.WebConfigFile,
		},
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slurmweb",
		Subsystem: "mock_gateway",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests served by the mock gateway.",
	}, []string{"code", "method"})
	registry.MustRegister(requests)

	gateway := mockgateway.New(mockgateway.Config{
		Logger:         c.Logger.With("subsystem", "gateway"),
		Anonymous:      c.Anonymous,
		LoginRateLimit: c.LoginRateLimit,
	})

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(promhttp.InstrumentHandlerCounter(requests, gateway))

	return server
}

// Start launches mock gateway HTTP server.
func (s *MockGatewayServer) Start() error {
	s.logger.Info("Starting " + base.MockGatewayAppName)

	if err := web.ListenAndServe(s.server, s.webConfig, s.logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Failed to Listen and Serve HTTP server", "err", err)

		return err
	}

	return nil
}

// Shutdown stops mock gateway HTTP server.
func (s *MockGatewayServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping " + base.MockGatewayAppName)

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to stop mock gateway HTTP server", "err", err)

		return err
	}

	return nil
}
