package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gmsas95/glucotrack/internal/config"
	"github.com/gmsas95/glucotrack/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.Prediction.Enabled = false
	cfg.Patient.ID = "patient-1"

	st, err := store.NewInMemory()
	require.NoError(t, err)

	a, err := NewWithStore(cfg, st, zap.NewNop(), "test")
	require.NoError(t, err)
	return a
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitHealthy(t *testing.T, port int) {
	t.Helper()
	url := fmt.Sprintf("http://127.0.0.1:%d/api/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(format)
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewWithStoreLoadsReminders(t *testing.T) {
	a := newTestApp(t)
	defer a.Close()

	assert.Len(t, a.Tracker.List(), 7)
	assert.Equal(t, "Asia/Manila", a.Tracker.Location().String())
	assert.Equal(t, "Asia/Manila", a.Tracking.Location().String())
	assert.Equal(t, 1, a.Alerts.Len())

	data, err := a.Store.GetItem("@notifications")
	require.NoError(t, err)
	assert.NotEmpty(t, data, "seeded reminders are persisted")
}

func TestReload(t *testing.T) {
	a := newTestApp(t)
	defer a.Close()

	next := *a.Config
	next.Reminders.Timezone = "UTC"
	a.Reload(&next)

	assert.Equal(t, "UTC", a.Tracker.Location().String())
	assert.Equal(t, "UTC", a.Tracking.Location().String())
	assert.Equal(t, "UTC", a.Config.Reminders.Timezone)
}

func TestPredictionConfig(t *testing.T) {
	pc := predictionConfig(config.PredictionConfig{
		BaseURL:         "http://localhost:9000",
		Timeout:         10,
		RPM:             60,
		Burst:           2,
		BreakerFailures: 3,
		BreakerCooldown: 45,
	})
	assert.Equal(t, 10*time.Second, pc.Timeout)
	assert.Equal(t, uint32(3), pc.BreakerFailures)
	assert.Equal(t, 45*time.Second, pc.BreakerCooldown)
	assert.Equal(t, 60, pc.RPM)
}

func TestStartAndShutdown(t *testing.T) {
	a := newTestApp(t)
	a.Config.Server.Address = "127.0.0.1"
	a.Config.Server.Port = freePort(t)

	require.NoError(t, a.Start())
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.CronRunner)
	assert.True(t, a.CronRunner.IsRunning())
	assert.Nil(t, a.Predictor)
	assert.Equal(t, 2, a.Alerts.Len(), "log sink and websocket hub")

	waitHealthy(t, a.Config.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Wait(ctx))

	_, err := a.Tracker.Snooze("notif-3")
	require.NoError(t, err)

	a.Shutdown()
	assert.False(t, a.CronRunner.IsRunning())
	assert.Empty(t, a.Tracker.PendingSnoozes())
}

func TestStartRequiresPatient(t *testing.T) {
	a := newTestApp(t)
	defer a.Close()
	a.Config.Patient.ID = ""

	err := a.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patient.id")
	assert.Nil(t, a.Server)
}

func TestShutdownStopsAlertSourcesBeforeSinks(t *testing.T) {
	a := newTestApp(t)
	defer a.Close()

	var names []string
	for _, step := range a.shutdownSteps() {
		names = append(names, step.name)
	}
	pos := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		t.Fatalf("no %s step in %v", name, names)
		return -1
	}

	for _, sink := range []string{"server", "telegram", "discord", "nats"} {
		assert.Less(t, pos("cron"), pos(sink), sink)
		assert.Less(t, pos("tracker"), pos(sink), sink)
	}
	assert.Equal(t, "store", names[len(names)-1])
}

func TestStartWithoutReminderTicks(t *testing.T) {
	a := newTestApp(t)
	a.Config.Server.Address = "127.0.0.1"
	a.Config.Server.Port = freePort(t)
	a.Config.Reminders.Enabled = false
	a.Config.Prediction.Enabled = true

	probed := make(chan struct{}, 1)
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			select {
			case probed <- struct{}{}:
			default:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer fake.Close()
	a.Config.Prediction.BaseURL = fake.URL

	require.NoError(t, a.Start())
	defer a.Shutdown()
	waitHealthy(t, a.Config.Server.Port)

	assert.Nil(t, a.CronRunner)
	assert.NotNil(t, a.Predictor)

	select {
	case <-probed:
	case <-time.After(5 * time.Second):
		t.Fatal("prediction service was never probed")
	}
}
