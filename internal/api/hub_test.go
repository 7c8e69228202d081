package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBroadcast(t *testing.T) {
	m := metrics.New()
	h := NewHub(zap.NewNop(), m)

	a := h.add("patient-1")
	b := h.add("patient-2")
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, int64(2), m.Snapshot().ActiveConnections)

	require.NoError(t, h.Alert(context.Background(), reminders.Alert{
		ReminderID: "notif-1",
		Category:   reminders.CategoryInsulin,
		Title:      "Morning Insulin",
		Kind:       reminders.AlertDue,
	}))

	for _, cl := range []*client{a, b} {
		msg := <-cl.send
		var got struct {
			Type  string          `json:"type"`
			Alert reminders.Alert `json:"alert"`
		}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "reminder", got.Type)
		assert.Equal(t, "notif-1", got.Alert.ReminderID)
	}

	h.remove(a)
	h.remove(a)
	assert.Equal(t, 1, h.Len())
}

func TestHubDropsForSlowClient(t *testing.T) {
	h := NewHub(zap.NewNop(), metrics.New())
	cl := h.add("patient-1")

	for i := 0; i < clientBuffer+5; i++ {
		require.NoError(t, h.Alert(context.Background(), reminders.Alert{ReminderID: "notif-0"}))
	}
	assert.Len(t, cl.send, clientBuffer)
}

func TestHubClose(t *testing.T) {
	h := NewHub(zap.NewNop(), metrics.New())
	cl := h.add("patient-1")

	h.Close()
	_, open := <-cl.send
	assert.False(t, open)
	assert.Equal(t, 0, h.Len())

	late := h.add("patient-2")
	_, open = <-late.send
	assert.False(t, open, "clients added after close are refused")
	assert.Equal(t, 0, h.Len())
}
