package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	setHits int
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string][]byte)}
}

func (m *memStorage) GetItem(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[key], nil
}

func (m *memStorage) SetItem(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setHits++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStorage) stored(t *testing.T) []Reminder {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []Reminder
	require.NoError(t, json.Unmarshal(m.data[StorageKey], &list))
	return list
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingAlerter) Alert(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerter) all() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// fakeTimers captures snooze callbacks so tests fire them by hand
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.timers[len(ft.timers)-1]
}

type fixture struct {
	tracker *Tracker
	storage *memStorage
	alerts  *recordingAlerter
	timers  *fakeTimers
	metrics *metrics.Metrics
	loc     *time.Location
	now     time.Time
}

func newFixture(t *testing.T, storage *memStorage) *fixture {
	t.Helper()
	loc := manila(t)
	f := &fixture{
		storage: storage,
		alerts:  &recordingAlerter{},
		timers:  &fakeTimers{},
		metrics: metrics.New(),
		loc:     loc,
		now:     time.Date(2025, 3, 10, 7, 3, 0, 0, loc),
	}
	f.tracker = NewTracker(storage, f.alerts, zap.NewNop(),
		WithClock(func() time.Time { return f.now }),
		WithLocation(loc),
		WithAfterFunc(f.timers.AfterFunc),
		WithMetrics(f.metrics),
	)
	f.tracker.Load(context.Background())
	return f
}

func TestLoadSeedsEmptyStore(t *testing.T) {
	f := newFixture(t, newMemStorage())

	list := f.tracker.List()
	require.Len(t, list, 7)
	assert.Equal(t, 7, f.tracker.UnreadCount())

	stored := f.storage.stored(t)
	assert.Len(t, stored, 7)
	assert.Equal(t, "Breakfast Time", stored[0].Title)
}

func TestLoadKeepsPersistedSet(t *testing.T) {
	storage := newMemStorage()
	seed := Generate(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), manila(t))[:2]
	seed[0].Read = true
	data, err := encodeReminders(seed)
	require.NoError(t, err)
	storage.data[StorageKey] = data

	f := newFixture(t, storage)

	list := f.tracker.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].Read)
	assert.Equal(t, 0, storage.setHits, "loading a stored set must not rewrite it")
}

func TestLoadEmptyArrayIsValid(t *testing.T) {
	storage := newMemStorage()
	storage.data[StorageKey] = []byte("[]")

	f := newFixture(t, storage)
	assert.Empty(t, f.tracker.List())
	assert.Equal(t, 0, f.tracker.UnreadCount())
}

func TestLoadReadFailureFallsBackInMemory(t *testing.T) {
	storage := newMemStorage()
	storage.getErr = errors.New("disk gone")

	f := newFixture(t, storage)

	assert.Len(t, f.tracker.List(), 7)
	assert.Equal(t, 0, storage.setHits, "fallback set is not persisted on load")
	assert.Equal(t, int64(1), f.metrics.Snapshot().StorageErrors)
}

func TestLoadCorruptDataFallsBackInMemory(t *testing.T) {
	storage := newMemStorage()
	storage.data[StorageKey] = []byte(`[{"id":"x","type":"nap"}]`)

	f := newFixture(t, storage)

	assert.Len(t, f.tracker.List(), 7)
	assert.Equal(t, 0, storage.setHits)

	_, err := f.tracker.MarkRead("notif-0")
	require.NoError(t, err)
	assert.Len(t, storage.stored(t), 7, "next write persists the regenerated set")
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t, newMemStorage())

	r, err := f.tracker.MarkRead("notif-1")
	require.NoError(t, err)
	assert.True(t, r.Read)
	assert.False(t, r.Done)
	assert.Equal(t, 6, f.tracker.UnreadCount())
	assert.True(t, f.storage.stored(t)[1].Read)
}

func TestMarkDoneIsIdempotent(t *testing.T) {
	f := newFixture(t, newMemStorage())

	first, err := f.tracker.MarkDone("notif-1")
	require.NoError(t, err)
	second, err := f.tracker.MarkDone("notif-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, second.Done)
	assert.True(t, second.Read)

	before := f.tracker.List()
	_, err = f.tracker.MarkDone("notif-1")
	require.NoError(t, err)
	assert.Equal(t, before, f.tracker.List())
	assert.True(t, f.storage.stored(t)[1].Done)
}

func TestUnknownIDs(t *testing.T) {
	f := newFixture(t, newMemStorage())

	_, err := f.tracker.MarkRead("nope")
	assert.True(t, errors.Is(err, apperrors.ErrReminderNotFound))

	_, err = f.tracker.MarkDone("nope")
	assert.True(t, errors.Is(err, apperrors.ErrReminderNotFound))

	_, err = f.tracker.Snooze("nope")
	assert.True(t, errors.Is(err, apperrors.ErrReminderNotFound))

	_, err = f.tracker.Get("nope")
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	storage := newMemStorage()
	f := newFixture(t, storage)
	storage.setErr = errors.New("quota exceeded")

	r, err := f.tracker.MarkDone("notif-0")
	require.NoError(t, err)
	assert.True(t, r.Done)

	got, err := f.tracker.Get("notif-0")
	require.NoError(t, err)
	assert.True(t, got.Done, "in-memory state still changes")
}

func TestInsulinScenario(t *testing.T) {
	f := newFixture(t, newMemStorage())
	at := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, f.loc) }

	status := func(now time.Time) Status {
		for _, v := range f.tracker.Views(CategoryInsulin, now) {
			if v.ID == "notif-1" {
				return v.Status
			}
		}
		t.Fatal("notif-1 missing")
		return ""
	}

	assert.Equal(t, StatusCurrent, status(at(7, 3)))
	assert.Equal(t, StatusMissed, status(at(7, 20)))

	_, err := f.tracker.MarkDone("notif-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status(at(7, 20)))
}

func TestViewsFilterAndOrder(t *testing.T) {
	f := newFixture(t, newMemStorage())

	views := f.tracker.Views(CategoryMeal, f.now)
	require.Len(t, views, 3)
	assert.Equal(t, "notif-0", views[0].ID)
	assert.Equal(t, StatusMissed, views[0].Status)
	assert.Equal(t, StatusUpcoming, views[1].Status)

	assert.Len(t, f.tracker.Filter(CategoryInsulin), 2)
}

func TestTickAlertsOnExactMinute(t *testing.T) {
	f := newFixture(t, newMemStorage())
	ctx := context.Background()

	fired := f.tracker.Tick(ctx, time.Date(2025, 3, 10, 7, 0, 30, 0, f.loc))
	require.Len(t, fired, 1)
	assert.Equal(t, "notif-1", fired[0].ReminderID)
	assert.Equal(t, AlertDue, fired[0].Kind)

	assert.Empty(t, f.tracker.Tick(ctx, time.Date(2025, 3, 10, 7, 1, 0, 0, f.loc)))
	assert.Empty(t, f.tracker.Tick(ctx, time.Date(2025, 3, 10, 6, 59, 0, 0, f.loc)))

	require.Len(t, f.alerts.all(), 1)
	assert.Equal(t, "Reminder: Morning Insulin\n\nTake your morning insulin dose", f.alerts.all()[0].Text())
}

func TestTickAtMostOncePerMinute(t *testing.T) {
	f := newFixture(t, newMemStorage())
	ctx := context.Background()

	f.tracker.Tick(ctx, time.Date(2025, 3, 10, 12, 0, 1, 0, f.loc))
	f.tracker.Tick(ctx, time.Date(2025, 3, 10, 12, 0, 59, 0, f.loc))
	assert.Len(t, f.alerts.all(), 1)

	// same slot next day alerts again
	f.tracker.Tick(ctx, time.Date(2025, 3, 11, 12, 0, 0, 0, f.loc))
	assert.Len(t, f.alerts.all(), 2)
}

func TestTickSkipsCompleted(t *testing.T) {
	f := newFixture(t, newMemStorage())
	_, err := f.tracker.MarkDone("notif-3")
	require.NoError(t, err)

	fired := f.tracker.Tick(context.Background(), time.Date(2025, 3, 10, 12, 0, 0, 0, f.loc))
	assert.Empty(t, fired)
	assert.Empty(t, f.alerts.all())
}

func TestTickUsesLocation(t *testing.T) {
	f := newFixture(t, newMemStorage())

	// 10:00 UTC is 18:00 in Manila
	fired := f.tracker.Tick(context.Background(), time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	require.Len(t, fired, 1)
	assert.Equal(t, "Dinner Time", fired[0].Title)
}

func TestSnoozeFiresOnce(t *testing.T) {
	f := newFixture(t, newMemStorage())

	h, err := f.tracker.Snooze("notif-1")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultSnoozeDelay), h.FireAt)

	timer := f.timers.last()
	assert.Equal(t, DefaultSnoozeDelay, timer.d)
	assert.Equal(t, []string{"notif-1"}, f.tracker.PendingSnoozes())

	timer.f()
	timer.f()

	alerts := f.alerts.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSnooze, alerts[0].Kind)
	assert.Empty(t, f.tracker.PendingSnoozes())

	r, err := f.tracker.Get("notif-1")
	require.NoError(t, err)
	assert.False(t, r.Read, "snooze does not touch stored flags")
}

func TestSnoozeCancel(t *testing.T) {
	f := newFixture(t, newMemStorage())

	h, err := f.tracker.Snooze("notif-2")
	require.NoError(t, err)
	timer := f.timers.last()

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.True(t, timer.stopped)

	timer.f()
	assert.Empty(t, f.alerts.all())
}

func TestCancelSnoozeByID(t *testing.T) {
	f := newFixture(t, newMemStorage())

	ok, err := f.tracker.CancelSnooze("notif-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.tracker.Snooze("notif-2")
	require.NoError(t, err)

	ok, err = f.tracker.CancelSnooze("notif-2")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.tracker.CancelSnooze("nope")
	assert.Error(t, err)
}

func TestResnoozeReplacesTimer(t *testing.T) {
	f := newFixture(t, newMemStorage())

	first, err := f.tracker.Snooze("notif-4")
	require.NoError(t, err)
	firstTimer := f.timers.last()

	_, err = f.tracker.Snooze("notif-4")
	require.NoError(t, err)
	secondTimer := f.timers.last()

	assert.True(t, firstTimer.stopped)
	assert.False(t, first.Cancel(), "replaced handle no longer controls the snooze")

	firstTimer.f()
	assert.Empty(t, f.alerts.all())

	secondTimer.f()
	assert.Len(t, f.alerts.all(), 1)
}

func TestMarkDoneCancelsSnooze(t *testing.T) {
	f := newFixture(t, newMemStorage())

	_, err := f.tracker.Snooze("notif-5")
	require.NoError(t, err)
	timer := f.timers.last()

	_, err = f.tracker.MarkDone("notif-5")
	require.NoError(t, err)
	assert.True(t, timer.stopped)

	timer.f()
	assert.Empty(t, f.alerts.all())
}

func TestCloseCancelsPendingSnoozes(t *testing.T) {
	f := newFixture(t, newMemStorage())

	_, err := f.tracker.Snooze("notif-0")
	require.NoError(t, err)
	_, err = f.tracker.Snooze("notif-6")
	require.NoError(t, err)

	f.tracker.Close()

	for _, tm := range f.timers.timers {
		assert.True(t, tm.stopped)
		tm.f()
	}
	assert.Empty(t, f.alerts.all())

	_, err = f.tracker.Snooze("notif-0")
	assert.Error(t, err)
}

func TestSnoozeWithRealTimer(t *testing.T) {
	alerts := &recordingAlerter{}
	tr := NewTracker(newMemStorage(), alerts, zap.NewNop(),
		WithSnoozeDelay(10*time.Millisecond),
		WithMetrics(metrics.New()),
	)
	tr.Load(context.Background())
	defer tr.Close()

	_, err := tr.Snooze("notif-0")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(alerts.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSetLocation(t *testing.T) {
	f := newFixture(t, newMemStorage())

	f.tracker.SetLocation(time.UTC)
	assert.Equal(t, time.UTC, f.tracker.Location())

	f.tracker.SetLocation(nil)
	assert.Equal(t, time.UTC, f.tracker.Location())
}

func TestSetLocationKeepsWallClock(t *testing.T) {
	f := newFixture(t, newMemStorage())

	f.tracker.SetLocation(time.UTC)
	f.now = time.Date(2025, 3, 10, 7, 3, 0, 0, time.UTC)

	r, err := f.tracker.Get("notif-1")
	require.NoError(t, err)
	assert.Equal(t, "07:00 AM", r.Time)
	assert.Equal(t, 7, r.ScheduledTime.Hour())
	assert.Equal(t, time.UTC, r.ScheduledTime.Location())
	assert.Equal(t, StatusCurrent, f.tracker.Status(r))

	alerts := f.tracker.Tick(context.Background(), time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC))
	require.Len(t, alerts, 1)
	assert.Equal(t, "notif-1", alerts[0].ReminderID)
}

func TestLoadReadsDeviceTimesInLocation(t *testing.T) {
	storage := newMemStorage()
	storage.data[StorageKey] = []byte(`[{"id":"notif-1","type":"insulin","title":"Morning Insulin","message":"Take your morning insulin dose","time":"07:00 AM","isRead":false,"isDone":false,"scheduledTime":"2025-03-09T23:00:00.000Z"}]`)
	f := newFixture(t, storage)

	r, err := f.tracker.Get("notif-1")
	require.NoError(t, err)
	assert.Equal(t, 7, r.ScheduledTime.Hour())
	assert.Equal(t, f.loc, r.ScheduledTime.Location())
	assert.Equal(t, StatusCurrent, f.tracker.Status(r))
}

func TestLoadAfterZoneChangeKeepsWallClock(t *testing.T) {
	storage := newMemStorage()
	newFixture(t, storage)

	tr := NewTracker(storage, nil, zap.NewNop(),
		WithLocation(time.UTC),
		WithMetrics(metrics.New()),
	)
	tr.Load(context.Background())
	defer tr.Close()

	r, err := tr.Get("notif-1")
	require.NoError(t, err)
	assert.Equal(t, 7, r.ScheduledTime.Hour())
	assert.Equal(t, time.UTC, r.ScheduledTime.Location())
	assert.Equal(t, "07:00 AM", r.Time)
}

func TestMultiAlerterJoinsErrors(t *testing.T) {
	rec := &recordingAlerter{}
	boom := AlerterFunc(func(context.Context, Alert) error { return errors.New("boom") })

	m := NewMultiAlerter(boom, rec)
	m.Add(NewLogAlerter(zap.NewNop()))
	assert.Equal(t, 3, m.Len())

	err := m.Alert(context.Background(), Alert{ReminderID: "notif-0"})
	assert.EqualError(t, err, "boom")
	assert.Len(t, rec.all(), 1, "later sinks still receive the alert")
}
