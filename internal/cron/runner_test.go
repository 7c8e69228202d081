package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingTicker struct {
	calls atomic.Int32
}

func (c *countingTicker) TickNow(ctx context.Context) []reminders.Alert {
	c.calls.Add(1)
	return []reminders.Alert{{ReminderID: "notif-1"}}
}

func TestNewRunnerRejectsBadSpec(t *testing.T) {
	_, err := NewRunner(Config{TickSpec: "every minute please"}, &countingTicker{}, zap.NewNop())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	r, err := NewRunner(Config{}, &countingTicker{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, r.IsRunning())
	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(), "double start")

	next := r.NextRun(TickJob)
	assert.False(t, next.IsZero())
	assert.Equal(t, 0, next.Second())
	assert.WithinDuration(t, time.Now(), next, time.Minute+time.Second)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestTickCallsTicker(t *testing.T) {
	ct := &countingTicker{}
	r, err := NewRunner(Config{}, ct, zap.NewNop())
	require.NoError(t, err)

	r.tick()
	r.tick()
	assert.Equal(t, int32(2), ct.calls.Load())
}

func TestSecondsJob(t *testing.T) {
	r, err := NewRunner(Config{}, &countingTicker{}, zap.NewNop())
	require.NoError(t, err)

	var fired atomic.Int32
	_, err = r.AddJob("fast", "@every 1s", func() { fired.Add(1) })
	require.NoError(t, err)

	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool { return fired.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestAddAndRemoveJob(t *testing.T) {
	r, err := NewRunner(Config{Location: time.UTC}, &countingTicker{}, zap.NewNop())
	require.NoError(t, err)

	_, err = r.AddJob("nightly", "0 0 * * *", func() {})
	require.NoError(t, err)
	_, err = r.AddJob("nightly", "30 0 * * *", func() {})
	require.NoError(t, err)

	assert.True(t, r.RemoveJob("nightly"))
	assert.False(t, r.RemoveJob("nightly"))
	assert.True(t, r.NextRun("nightly").IsZero())
}
