package channels

import (
	"context"
	"testing"
	"time"

	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage map[string][]byte

func (m memStorage) GetItem(key string) ([]byte, error)    { return m[key], nil }
func (m memStorage) SetItem(key string, value []byte) error { m[key] = value; return nil }

func newTracker(t *testing.T) *reminders.Tracker {
	t.Helper()
	now := time.Date(2025, 3, 10, 7, 3, 0, 0, time.UTC)
	tr := reminders.NewTracker(memStorage{}, nil, zap.NewNop(),
		reminders.WithClock(func() time.Time { return now }),
		reminders.WithLocation(time.UTC),
		reminders.WithMetrics(metrics.New()),
	)
	tr.Load(context.Background())
	t.Cleanup(tr.Close)
	return tr
}

func TestParseCommand(t *testing.T) {
	cmd, args, ok := ParseCommand("/done notif-1")
	require.True(t, ok)
	assert.Equal(t, "done", cmd)
	assert.Equal(t, []string{"notif-1"}, args)

	cmd, _, ok = ParseCommand("  /Reminders@glucobot  ")
	require.True(t, ok)
	assert.Equal(t, "reminders", cmd)

	_, _, ok = ParseCommand("hello")
	assert.False(t, ok)
	_, _, ok = ParseCommand("/")
	assert.False(t, ok)
}

func TestReplyList(t *testing.T) {
	tr := newTracker(t)

	out := Reply(tr, "reminders", []string{"insulin"})
	assert.Contains(t, out, "⏰ 07:00 AM Morning Insulin (notif-1)")
	assert.Contains(t, out, "🕒 07:00 PM Evening Insulin (notif-6)")
	assert.NotContains(t, out, "Breakfast")
	assert.Contains(t, out, "Unread: 7")

	assert.Contains(t, Reply(tr, "reminders", []string{"naps"}), "unknown reminder category")
}

func TestReplyActions(t *testing.T) {
	tr := newTracker(t)

	assert.Contains(t, Reply(tr, "read", []string{"notif-0"}), "Time for your morning meal")
	assert.Contains(t, Reply(tr, "done", []string{"notif-1"}), "Morning Insulin marked as done")
	assert.Contains(t, Reply(tr, "snooze", []string{"notif-2"}), "07:18 AM")
	assert.Contains(t, Reply(tr, "done", []string{"nope"}), "❌")
	assert.Equal(t, "Usage: /done <id>", Reply(tr, "done", nil))
	assert.Equal(t, HelpText, Reply(tr, "help", nil))
	assert.Contains(t, Reply(tr, "dance", nil), "Unknown command")

	assert.Contains(t, Reply(tr, "list", nil), "✅ 07:00 AM Morning Insulin")
	assert.Equal(t, 5, tr.UnreadCount())
}

func TestFormatViewsEmpty(t *testing.T) {
	assert.Equal(t, "No notifications right now", FormatViews(nil))
}
