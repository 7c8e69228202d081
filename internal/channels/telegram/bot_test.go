package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/gmsas95/glucotrack/internal/reminders"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent     []tgbotapi.MessageConfig
	failMode string // "markdown" fails only markdown sends, "all" fails everything
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	switch {
	case f.failMode == "all":
		return tgbotapi.Message{}, errors.New("network down")
	case f.failMode == "markdown" && msg.ParseMode != "":
		return tgbotapi.Message{}, errors.New("can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

type memStorage map[string][]byte

func (m memStorage) GetItem(key string) ([]byte, error)    { return m[key], nil }
func (m memStorage) SetItem(key string, value []byte) error { m[key] = value; return nil }

func newTestBot(t *testing.T) (*Bot, *fakeSender, *reminders.Tracker) {
	t.Helper()
	tr := reminders.NewTracker(memStorage{}, nil, zap.NewNop(),
		reminders.WithClock(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }),
		reminders.WithLocation(time.UTC),
		reminders.WithMetrics(metrics.New()),
	)
	tr.Load(context.Background())
	t.Cleanup(tr.Close)

	fs := &fakeSender{}
	return newBot(fs, 42, tr, zap.NewNop()), fs, tr
}

func update(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}}
}

func TestDisabledBot(t *testing.T) {
	b, err := NewBot(Config{Enabled: false}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, b.Enabled())
	assert.NoError(t, b.Start())
	b.Stop()

	err = b.Alert(context.Background(), reminders.Alert{})
	assert.True(t, errors.Is(err, apperrors.ErrChannelNotConfigured))
	assert.False(t, b.Enabled())
}

func TestAlertSendsToChat(t *testing.T) {
	b, fs, _ := newTestBot(t)

	err := b.Alert(context.Background(), reminders.Alert{ReminderID: "notif-3", Title: "Lunch Time", Message: "Time for your afternoon meal"})
	require.NoError(t, err)
	require.Len(t, fs.sent, 1)
	assert.Equal(t, int64(42), fs.sent[0].ChatID)
	assert.Contains(t, fs.sent[0].Text, "Lunch Time")
	assert.Contains(t, fs.sent[0].Text, "/done notif-3")
}

func TestAlertFallsBackToPlainText(t *testing.T) {
	b, fs, _ := newTestBot(t)
	fs.failMode = "markdown"

	require.NoError(t, b.Alert(context.Background(), reminders.Alert{ReminderID: "notif-3", Title: "Lunch_Time"}))
	require.Len(t, fs.sent, 1)
	assert.Empty(t, fs.sent[0].ParseMode)
}

func TestAlertFailure(t *testing.T) {
	b, fs, _ := newTestBot(t)
	fs.failMode = "all"

	err := b.Alert(context.Background(), reminders.Alert{ReminderID: "notif-3"})
	assert.True(t, errors.Is(err, apperrors.ErrChannelUnavailable))
}

func TestCommands(t *testing.T) {
	b, fs, tr := newTestBot(t)

	require.NoError(t, b.handleUpdate(update(42, "/done notif-3")))
	require.Len(t, fs.sent, 1)
	assert.Contains(t, fs.sent[0].Text, "Lunch Time marked as done")

	r, err := tr.Get("notif-3")
	require.NoError(t, err)
	assert.True(t, r.Done)

	require.NoError(t, b.handleUpdate(update(42, "just chatting")))
	assert.Len(t, fs.sent, 1, "plain text is ignored")

	require.NoError(t, b.handleUpdate(tgbotapi.Update{}))
	assert.Len(t, fs.sent, 1)
}

func TestRejectsOtherChats(t *testing.T) {
	b, fs, tr := newTestBot(t)

	require.NoError(t, b.handleUpdate(update(7, "/done notif-3")))
	require.Len(t, fs.sent, 1)
	assert.Contains(t, fs.sent[0].Text, "not authorized")

	r, err := tr.Get("notif-3")
	require.NoError(t, err)
	assert.False(t, r.Done)
}
