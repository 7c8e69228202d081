package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"go.uber.org/zap"
)

// DefaultSnoozeDelay is how long a snoozed reminder waits before re-alerting
const DefaultSnoozeDelay = 15 * time.Minute

// DeviceStorage is the key-value store the reminder set is persisted in.
// GetItem returns nil without error when the key is absent.
type DeviceStorage interface {
	GetItem(key string) ([]byte, error)
	SetItem(key string, value []byte) error
}

// Timer is the part of *time.Timer the tracker needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the zone reminders are evaluated in
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

func WithSnoozeDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.snoozeDelay = d
		}
	}
}

func WithCurrentWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.window = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc for snooze timers
func WithAfterFunc(f AfterFunc) Option {
	return func(t *Tracker) { t.afterFunc = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		if m != nil {
			t.metrics = m
		}
	}
}

// SnoozeHandle identifies one pending snooze
type SnoozeHandle struct {
	ReminderID string
	FireAt     time.Time

	tracker *Tracker
	timer   Timer
}

// Cancel stops the re-alert. It reports whether the snooze was still pending.
func (h *SnoozeHandle) Cancel() bool {
	if h == nil || h.tracker == nil {
		return false
	}
	return h.tracker.cancelHandle(h)
}

// Tracker holds the day's reminders. All mutations and writes are
// serialized by mu; alerts are delivered after it is released.
type Tracker struct {
	storage DeviceStorage
	alerter Alerter
	logger  *zap.Logger
	metrics *metrics.Metrics

	now         func() time.Time
	afterFunc   AfterFunc
	snoozeDelay time.Duration
	window      time.Duration

	mu        sync.Mutex
	loc       *time.Location
	reminders []Reminder
	snoozes   map[string]*SnoozeHandle
	lastFired map[string]string
	closed    bool
}

// NewTracker builds a tracker. Call Load before use.
func NewTracker(storage DeviceStorage, alerter Alerter, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		storage:     storage,
		alerter:     alerter,
		logger:      logger,
		metrics:     metrics.Default(),
		now:         time.Now,
		afterFunc:   stdAfterFunc,
		snoozeDelay: DefaultSnoozeDelay,
		window:      DefaultCurrentWindow,
		loc:         time.Local,
		snoozes:     make(map[string]*SnoozeHandle),
		lastFired:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads the persisted set. An absent set is seeded from the daily
// template and written right away. A read or decode failure falls back to
// the template in memory only; the next successful write persists it.
func (t *Tracker) Load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.storage.GetItem(StorageKey)
	if err != nil {
		t.logger.Error("Failed to read reminders", zap.Error(err))
		t.metrics.RecordStorageError("get")
		t.reminders = Generate(t.now(), t.loc)
		return
	}

	if len(data) == 0 {
		t.reminders = Generate(t.now(), t.loc)
		t.logger.Info("Seeded daily reminders", zap.Int("count", len(t.reminders)))
		t.persistLocked()
		return
	}

	list, err := decodeReminders(data)
	if err != nil {
		t.logger.Error("Failed to decode reminders", zap.Error(err))
		t.metrics.RecordStorageError("decode")
		t.reminders = Generate(t.now(), t.loc)
		return
	}

	for i := range list {
		list[i] = anchor(list[i], t.loc)
	}
	t.reminders = list
	t.logger.Debug("Loaded reminders", zap.Int("count", len(list)))
}

// persistLocked writes the whole set. Failures are logged and dropped.
func (t *Tracker) persistLocked() {
	data, err := encodeReminders(t.reminders)
	if err != nil {
		t.logger.Error("Failed to encode reminders", zap.Error(err))
		t.metrics.RecordStorageError("encode")
		return
	}
	if err := t.storage.SetItem(StorageKey, data); err != nil {
		t.logger.Error("Failed to persist reminders", zap.Error(err))
		t.metrics.RecordStorageError("set")
	}
}

func (t *Tracker) indexLocked(id string) int {
	for i := range t.reminders {
		if t.reminders[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(id string) error {
	return apperrors.Wrap(fmt.Errorf("id %q", id), apperrors.ErrReminderNotFound.Code, apperrors.ErrReminderNotFound.Message)
}

// MarkRead records that the patient opened the reminder
func (t *Tracker) MarkRead(id string) (Reminder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(id)
	if i < 0 {
		return Reminder{}, notFound(id)
	}
	t.reminders[i].Read = true
	t.persistLocked()
	t.metrics.RecordReminderAction("read")
	return t.reminders[i], nil
}

// MarkDone completes the reminder for the day and drops any pending snooze.
// Calling it again changes nothing.
func (t *Tracker) MarkDone(id string) (Reminder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(id)
	if i < 0 {
		return Reminder{}, notFound(id)
	}
	t.reminders[i].Done = true
	t.reminders[i].Read = true
	t.cancelSnoozeLocked(id)
	t.persistLocked()
	t.metrics.RecordReminderAction("done")
	return t.reminders[i], nil
}

// Snooze re-alerts the reminder once after the snooze delay. Snoozing the
// same reminder again replaces the earlier timer. Stored state is untouched.
func (t *Tracker) Snooze(id string) (*SnoozeHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, apperrors.New(apperrors.ErrInternal.Code, "reminder tracker closed")
	}
	if t.indexLocked(id) < 0 {
		return nil, notFound(id)
	}

	t.cancelSnoozeLocked(id)

	h := &SnoozeHandle{
		ReminderID: id,
		FireAt:     t.now().Add(t.snoozeDelay),
		tracker:    t,
	}
	h.timer = t.afterFunc(t.snoozeDelay, func() { t.fireSnooze(h) })
	t.snoozes[id] = h
	t.metrics.RecordReminderAction("snooze")

	t.logger.Info("Reminder snoozed",
		zap.String("reminder_id", id),
		zap.Time("fire_at", h.FireAt),
	)
	return h, nil
}

// CancelSnooze stops a pending snooze. It reports whether one was pending.
func (t *Tracker) CancelSnooze(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexLocked(id) < 0 {
		return false, notFound(id)
	}
	ok := t.cancelSnoozeLocked(id)
	if ok {
		t.metrics.RecordReminderAction("snooze_cancel")
	}
	return ok, nil
}

func (t *Tracker) cancelHandle(h *SnoozeHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snoozes[h.ReminderID] != h {
		return false
	}
	return t.cancelSnoozeLocked(h.ReminderID)
}

func (t *Tracker) cancelSnoozeLocked(id string) bool {
	h, ok := t.snoozes[id]
	if !ok {
		return false
	}
	delete(t.snoozes, id)
	if h.timer != nil {
		h.timer.Stop()
	}
	return true
}

// fireSnooze runs on the timer goroutine. A snooze that was replaced or
// canceled, or whose reminder was completed meanwhile, is dropped.
func (t *Tracker) fireSnooze(h *SnoozeHandle) {
	t.mu.Lock()
	if t.closed || t.snoozes[h.ReminderID] != h {
		t.mu.Unlock()
		return
	}
	delete(t.snoozes, h.ReminderID)

	i := t.indexLocked(h.ReminderID)
	if i < 0 || t.reminders[i].Done {
		t.mu.Unlock()
		return
	}
	a := newAlert(t.reminders[i], AlertSnooze, t.now())
	t.mu.Unlock()

	t.dispatch(context.Background(), a)
}

// PendingSnoozes returns the ids with a snooze still waiting to fire
func (t *Tracker) PendingSnoozes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.snoozes))
	for _, r := range t.reminders {
		if _, ok := t.snoozes[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Tick checks every reminder against the hour and minute of now and alerts
// the ones that fall on it and are not completed. A reminder alerts at most
// once for a given minute even if Tick runs twice within it.
func (t *Tracker) Tick(ctx context.Context, now time.Time) []Alert {
	t.mu.Lock()
	stamp := now.In(t.loc).Format("2006-01-02T15:04")

	var alerts []Alert
	for _, r := range t.reminders {
		if r.Done || !dueAt(r, now, t.loc) {
			continue
		}
		if t.lastFired[r.ID] == stamp {
			continue
		}
		t.lastFired[r.ID] = stamp
		alerts = append(alerts, newAlert(r, AlertDue, now))
	}
	t.mu.Unlock()

	for _, a := range alerts {
		t.dispatch(ctx, a)
	}
	return alerts
}

// TickNow runs Tick at the tracker's clock
func (t *Tracker) TickNow(ctx context.Context) []Alert {
	return t.Tick(ctx, t.now())
}

func (t *Tracker) dispatch(ctx context.Context, a Alert) {
	t.metrics.RecordAlert(string(a.Kind))
	if t.alerter == nil {
		return
	}
	if err := t.alerter.Alert(ctx, a); err != nil {
		t.logger.Warn("Failed to deliver reminder alert",
			zap.String("reminder_id", a.ReminderID),
			zap.String("kind", string(a.Kind)),
			zap.Error(err),
		)
	}
}

// List returns a copy of all reminders in stored order
func (t *Tracker) List() []Reminder {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Reminder(nil), t.reminders...)
}

func (t *Tracker) Get(id string) (Reminder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(id)
	if i < 0 {
		return Reminder{}, notFound(id)
	}
	return t.reminders[i], nil
}

// Filter returns reminders of category c in stored order
func (t *Tracker) Filter(c Category) []Reminder {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FilterByCategory(t.reminders, c)
}

// UnreadCount counts reminders that are neither read nor done
func (t *Tracker) UnreadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return CountUnread(t.reminders)
}

// Views returns reminders of category c with their status at now
func (t *Tracker) Views(c Category, now time.Time) []View {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := FilterByCategory(t.reminders, c)
	views := make([]View, 0, len(list))
	for _, r := range list {
		views = append(views, View{Reminder: r, Status: DeriveStatus(r, now, t.loc, t.window)})
	}
	return views
}

// Status derives the status of r at the tracker's current time
func (t *Tracker) Status(r Reminder) Status {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return DeriveStatus(r, now, t.loc, t.window)
}

// Now returns the tracker's clock reading
func (t *Tracker) Now() time.Time {
	return t.now()
}

// Location returns the zone reminders are evaluated in
func (t *Tracker) Location() *time.Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc
}

// SetLocation switches the evaluation zone, e.g. after a config reload.
// Every reminder keeps its wall clock, so a 07:00 slot stays at 07:00 in
// the new zone.
func (t *Tracker) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loc.String() != loc.String() {
		t.logger.Info("Reminder time zone changed",
			zap.String("from", t.loc.String()),
			zap.String("to", loc.String()),
		)
	}
	t.loc = loc
	for i := range t.reminders {
		t.reminders[i] = anchor(t.reminders[i], loc)
	}
}

// Close cancels every pending snooze. Later snoozes are refused.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.snoozes {
		t.cancelSnoozeLocked(id)
	}
	t.closed = true
}
