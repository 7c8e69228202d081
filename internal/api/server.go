// Package api serves the patient HTTP API and the reminder alert websocket
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gmsas95/glucotrack/internal/config"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/gmsas95/glucotrack/internal/prediction"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gmsas95/glucotrack/internal/tracking"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SessionStore keeps issued tokens so they can be revoked
type SessionStore interface {
	SetSession(key string, value []byte, ttl time.Duration) error
	GetSession(key string) ([]byte, error)
	DeleteSession(key string) error
}

// Predictor is the prediction service as the API uses it
type Predictor interface {
	Predict(ctx context.Context, req *prediction.Request) (*prediction.Response, error)
	Status(ctx context.Context, patientID string) (*prediction.ModelStatus, error)
	Train(ctx context.Context, patientID string) (prediction.TrainResult, error)
}

// Deps are the components the handlers work on. Predictor may be nil when
// the prediction service is disabled.
type Deps struct {
	Tracker   *reminders.Tracker
	Tracking  *tracking.Store
	Sessions  SessionStore
	Predictor Predictor
	Metrics   *metrics.Metrics
}

// Server handles HTTP API and WebSocket. It serves the one patient the
// install is bound to: the reminder set, the websocket alerts and device
// storage are theirs, and tokens for anyone else are refused.
type Server struct {
	app       *fiber.App
	config    *config.Config
	owner     string
	tracker   *reminders.Tracker
	tracking  *tracking.Store
	sessions  SessionStore
	predictor Predictor
	hub       *Hub
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new API server
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}

	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second

	s := &Server{
		config:    cfg,
		owner:     cfg.Patient.ID,
		tracker:   deps.Tracker,
		tracking:  deps.Tracking,
		sessions:  deps.Sessions,
		predictor: deps.Predictor,
		hub:       NewHub(logger, deps.Metrics),
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
	if deps.Tracker != nil {
		s.now = deps.Tracker.Now
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "glucotrack",
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.setupRoutes()
	return s
}

// Hub returns the websocket hub. Register it as a reminder alert sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("API server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return s.app.ShutdownWithContext(ctx)
}
