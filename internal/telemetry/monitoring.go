package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/health"
)

// Source is the state the monitoring server exposes.
type Source interface {
	// Health runs the checks and returns a fresh report.
	Health(ctx context.Context) health.Report
	// Snapshot returns a JSON-encodable status snapshot.
	Snapshot(ctx context.Context) any
	LastRecommendations() []cost.Recommendation
}

// MonitoringServer serves health, status and metrics over HTTP.
type MonitoringServer struct {
	source  Source
	metrics *Metrics
	engine  *gin.Engine
	server  *http.Server
}

// NewMonitoringServer builds the router; metrics may be nil.
func NewMonitoringServer(addr string, source Source, metrics *Metrics) *MonitoringServer {
	gin.SetMode(gin.ReleaseMode)
	ms := &MonitoringServer{
		source:  source,
		metrics: metrics,
		engine:  gin.New(),
	}
	ms.setupRoutes()
	ms.server = &http.Server{
		Addr:              addr,
		Handler:           ms.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return ms
}

func (ms *MonitoringServer) setupRoutes() {
	ms.engine.Use(gin.Recovery(), requestLogger())

	ms.engine.GET("/health", ms.healthHandler)
	ms.engine.GET("/api/status", ms.statusHandler)
	ms.engine.GET("/api/recommendations", ms.recommendationsHandler)
	if ms.metrics != nil {
		ms.engine.GET("/metrics", gin.WrapH(ms.metrics.Handler()))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// healthHandler answers 503 while degraded.
func (ms *MonitoringServer) healthHandler(c *gin.Context) {
	report := ms.source.Health(c.Request.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (ms *MonitoringServer) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ms.source.Snapshot(c.Request.Context()))
}

func (ms *MonitoringServer) recommendationsHandler(c *gin.Context) {
	recs := ms.source.LastRecommendations()
	if recs == nil {
		recs = []cost.Recommendation{}
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs, "count": len(recs)})
}

// Handler exposes the router, mainly for tests.
func (ms *MonitoringServer) Handler() http.Handler { return ms.engine }

// Addr is the configured listen address.
func (ms *MonitoringServer) Addr() string { return ms.server.Addr }

// Start blocks serving until Shutdown.
func (ms *MonitoringServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Msg("Starting monitoring server")
	if err := ms.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (ms *MonitoringServer) Shutdown(ctx context.Context) error {
	if ms.server == nil {
		return nil
	}
	return ms.server.Shutdown(ctx)
}
