// Package nats publishes reminder alerts on a NATS subject so other
// services (push gateways, caregivers' dashboards) can subscribe.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/reminders"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config holds NATS publisher settings
type Config struct {
	URL     string
	Subject string
}

type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// Publisher sends alerts as JSON to a subject
type Publisher struct {
	nc      *natsgo.Conn
	conn    conn
	subject string
	logger  *zap.Logger
}

// Connect dials the server and returns a publisher for cfg.Subject
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.Subject == "" {
		return nil, apperrors.New(apperrors.ErrChannelNotConfigured.Code, "nats subject is required")
	}

	nc, err := natsgo.Connect(cfg.URL,
		natsgo.Name("glucotrack"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	p := newPublisher(nc, cfg.Subject, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string, logger *zap.Logger) *Publisher {
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// Subject returns the subject alerts go to
func (p *Publisher) Subject() string {
	return p.subject
}

// Alert publishes a as JSON
func (p *Publisher) Alert(ctx context.Context, a reminders.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrChannelUnavailable.Code, "nats publish failed")
	}

	timeout := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		p.logger.Warn("NATS flush failed", zap.Error(err))
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
