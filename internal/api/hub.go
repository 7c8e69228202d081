package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const clientBuffer = 16

type client struct {
	patientID string
	send      chan []byte
}

// Hub broadcasts reminder alerts to connected websocket clients
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		metrics: m,
	}
}

func (h *Hub) add(patientID string) *client {
	cl := &client{patientID: patientID, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(cl.send)
		return cl
	}
	h.clients[cl] = struct{}{}
	h.metrics.IncrementActiveConnections()
	return cl
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	h.metrics.DecrementActiveConnections()
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Alert queues a to every client. A client whose buffer is full misses it.
func (h *Hub) Alert(_ context.Context, a reminders.Alert) error {
	msg, err := json.Marshal(struct {
		Type  string          `json:"type"`
		Alert reminders.Alert `json:"alert"`
	}{Type: "reminder", Alert: a})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.logger.Warn("WebSocket client too slow, alert dropped",
				zap.String("patient_id", cl.patientID),
				zap.String("reminder_id", a.ReminderID),
			)
		}
	}
	return nil
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
		h.metrics.DecrementActiveConnections()
	}
	h.closed = true
}

// serve pumps queued alerts to conn until either side goes away
func (h *Hub) serve(conn *websocket.Conn, patientID string) {
	cl := h.add(patientID)
	defer h.remove(cl)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("WebSocket write error", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
