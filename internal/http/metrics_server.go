package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/envsafe/internal/metrics"
)

// MetricsServer serves the Prometheus scrape endpoint for the key, secret,
// folder and snapshot operation metrics. It listens apart from the ops server so
// scrapes never compete with liveness and readiness probes.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer creates a MetricsServer. With a nil provider every path
// answers 404.
func NewMetricsServer(host string, port int, logger *slog.Logger, provider *metrics.Provider) *MetricsServer {
	router := newRouter(logger)
	if provider != nil {
		router.GET("/metrics", gin.WrapH(provider.Handler()))
	}

	server := newHTTPServer(host, port)
	server.Handler = router
	return &MetricsServer{server: server, logger: logger.With(slog.String("server", "metrics"))}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start blocks serving scrapes until Shutdown is called.
func (s *MetricsServer) Start(ctx context.Context) error {
	return listen(s.server, s.logger)
}

// Shutdown stops accepting scrapes and waits for in-flight ones until ctx ends.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}
