// Package prediction is the client for the glucose prediction service
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds prediction client settings
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RPM             int // requests per minute, 0 = unlimited
	Burst           int
	BreakerFailures uint32        // consecutive failures that open the circuit
	BreakerCooldown time.Duration // how long the circuit stays open
}

// StatusError is a non-2xx answer from the service
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

// Client calls the prediction service through a circuit breaker and a
// request rate limiter
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new prediction client
func NewClient(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if m == nil {
		m = metrics.Default()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: m,
	}

	// RPM limiter: convert to requests per second
	if cfg.RPM > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), burst)
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "prediction",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors are the caller's fault, not the service's
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Prediction circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// State reports the circuit breaker state
func (c *Client) State() string {
	return c.breaker.State().String()
}

// Health checks the service is up
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Predict asks for the expected glucose level after a dose and meal
func (c *Client) Predict(ctx context.Context, req *Request) (*Response, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/predict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Train starts training the patient's personal model
func (c *Client) Train(ctx context.Context, patientID string) (TrainResult, error) {
	var out TrainResult
	if err := c.do(ctx, http.MethodPost, "/train/"+url.PathEscape(patientID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the patient's model status
func (c *Client) Status(ctx context.Context, patientID string) (*ModelStatus, error) {
	var out ModelStatus
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(patientID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	start := time.Now()

	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.RecordPrediction("rate_limited", 0)
		return apperrors.ErrPredictionRateLimited
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, in)
	})
	if err != nil {
		return c.classify(path, err, time.Since(start))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			c.metrics.RecordPrediction("decode_error", time.Since(start))
			return apperrors.Wrap(err, apperrors.ErrPredictionStatus.Code, "failed to decode prediction response")
		}
	}
	c.metrics.RecordPrediction("ok", time.Since(start))
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in interface{}) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func (c *Client) classify(path string, err error, d time.Duration) error {
	var se *StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.RecordPrediction("circuit_open", d)
		return apperrors.Wrap(err, apperrors.ErrPredictionUnavailable.Code, "prediction service unavailable")
	case errors.As(err, &se):
		c.metrics.RecordPrediction("status_error", d)
		c.logger.Warn("Prediction request failed",
			zap.String("path", path),
			zap.Int("status", se.Status),
		)
		return apperrors.Wrap(se, apperrors.ErrPredictionStatus.Code, fmt.Sprintf("prediction service returned %d", se.Status))
	default:
		c.metrics.RecordPrediction("transport_error", d)
		c.logger.Warn("Prediction request failed", zap.String("path", path), zap.Error(err))
		return apperrors.Wrap(err, apperrors.ErrPredictionUnavailable.Code, "prediction service unreachable")
	}
}
