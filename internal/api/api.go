// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/api/health"
	"github.com/good-yellow-bee/vitalwatch/internal/ingest"
	"github.com/good-yellow-bee/vitalwatch/internal/lifecycle"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
	"github.com/good-yellow-bee/vitalwatch/internal/query"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address         string
	RequestTimeout  time.Duration
	IngestRateLimit int // POST /vitals requests per minute per client, 0 disables
	Version         string
	Verbose         bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// VitalsReader answers vital sign queries.
type VitalsReader interface {
	Latest(ctx context.Context, patientID string) (*models.Sample, error)
	Range(ctx context.Context, patientID string, start, end time.Time, limit int) (*query.RangeResult, error)
	RecentAll(ctx context.Context, window time.Duration, limit int) (*query.RecentResult, error)
	PatientInfo(ctx context.Context, patientID string) (*models.PatientInfo, error)
}

// Ingester processes one sample synchronously.
type Ingester interface {
	Process(ctx context.Context, s *models.Sample) (*ingest.Result, error)
}

// AlertManager lists and acknowledges alerts.
type AlertManager interface {
	List(ctx context.Context, f lifecycle.Filter) (*lifecycle.ListResult, error)
	Acknowledge(ctx context.Context, alertID string) (*models.Alert, error)
}

// ConfigManager manages threshold configs and patients.
type ConfigManager interface {
	Create(ctx context.Context, in query.ConfigInput) (*models.ThresholdConfig, error)
	Update(ctx context.Context, id string, patch query.ConfigPatch) (*models.ThresholdConfig, error)
	Delete(ctx context.Context, id string) error
	ListForPatient(ctx context.Context, patientID string) ([]*models.ThresholdConfig, error)
	Admit(ctx context.Context, p models.PatientInfo) (*models.PatientInfo, error)
	Patient(ctx context.Context, id string) (*query.PatientRecord, error)
}

// Services are the domain operations exposed over HTTP.
type Services struct {
	Vitals  VitalsReader
	Ingest  Ingester
	Alerts  AlertManager
	Configs ConfigManager
}

func (s Services) validate() error {
	switch {
	case s.Vitals == nil:
		return errors.New("vitals service is required")
	case s.Ingest == nil:
		return errors.New("ingest service is required")
	case s.Alerts == nil:
		return errors.New("alert service is required")
	case s.Configs == nil:
		return errors.New("config service is required")
	}
	return nil
}

// Server is the HTTP API server.
type Server struct {
	config   *Config
	services Services
	logger   *zap.Logger
	server   *http.Server
	health   *health.Handler
	now      func() time.Time
}

// New creates a new API server.
func New(cfg *Config, services Services, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := services.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:   cfg,
		services: services,
		logger:   logger.Named("api"),
		health:   health.NewHandler(cfg.Version),
		now:      time.Now,
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a dependency to the readiness probe.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.health.RegisterChecker(c)
}
