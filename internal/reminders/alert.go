package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AlertKind tells a due alert from a snoozed re-alert
type AlertKind string

const (
	AlertDue    AlertKind = "due"
	AlertSnooze AlertKind = "snooze"
)

// Alert is what gets pushed to the patient when a reminder fires
type Alert struct {
	ReminderID string    `json:"reminder_id"`
	Category   Category  `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Kind       AlertKind `json:"kind"`
	At         time.Time `json:"at"`
}

func newAlert(r Reminder, kind AlertKind, at time.Time) Alert {
	return Alert{
		ReminderID: r.ID,
		Category:   r.Category,
		Title:      r.Title,
		Message:    r.Message,
		Kind:       kind,
		At:         at,
	}
}

// Text renders the alert body used by chat sinks
func (a Alert) Text() string {
	return fmt.Sprintf("Reminder: %s\n\n%s", a.Title, a.Message)
}

// Alerter delivers alerts to the patient
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// AlerterFunc adapts a function to Alerter
type AlerterFunc func(ctx context.Context, a Alert) error

func (f AlerterFunc) Alert(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// MultiAlerter fans an alert out to every registered sink. One failing sink
// does not stop the others.
type MultiAlerter struct {
	mu    sync.RWMutex
	sinks []Alerter
}

func NewMultiAlerter(sinks ...Alerter) *MultiAlerter {
	return &MultiAlerter{sinks: sinks}
}

// Add registers another sink
func (m *MultiAlerter) Add(a Alerter) {
	m.mu.Lock()
	m.sinks = append(m.sinks, a)
	m.mu.Unlock()
}

// Len returns the number of registered sinks
func (m *MultiAlerter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

func (m *MultiAlerter) Alert(ctx context.Context, a Alert) error {
	m.mu.RLock()
	sinks := append([]Alerter(nil), m.sinks...)
	m.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogAlerter writes alerts to the log
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Alert(_ context.Context, a Alert) error {
	l.logger.Info("Reminder",
		zap.String("reminder_id", a.ReminderID),
		zap.String("type", string(a.Category)),
		zap.String("title", a.Title),
		zap.String("kind", string(a.Kind)),
	)
	return nil
}
