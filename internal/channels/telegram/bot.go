package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/gmsas95/glucotrack/internal/channels"
	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/reminders"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// sender is the part of *tgbotapi.BotAPI used to reply
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot pushes reminder alerts to one chat and answers reminder commands
// from it
type Bot struct {
	api     *tgbotapi.BotAPI
	send    sender
	chatID  int64
	control channels.ReminderControl
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	enabled bool
}

// Config holds Telegram bot configuration
type Config struct {
	Token   string
	Enabled bool
	ChatID  int64 // only chat that receives alerts and may send commands
}

// NewBot creates a new Telegram bot
func NewBot(cfg Config, control channels.ReminderControl, logger *zap.Logger) (*Bot, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return &Bot{enabled: false}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	b := newBot(api, cfg.ChatID, control, logger)
	b.api = api
	return b, nil
}

func newBot(send sender, chatID int64, control channels.ReminderControl, logger *zap.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		send:    send,
		chatID:  chatID,
		control: control,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
	}
}

// Enabled reports whether the bot was configured
func (b *Bot) Enabled() bool {
	return b.enabled
}

// Start begins polling for commands
func (b *Bot) Start() error {
	if !b.enabled || b.api == nil {
		return nil
	}

	b.wg.Add(1)
	go b.run()

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() {
	if !b.enabled {
		return
	}
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	b.cancel()
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error("Failed to handle update", zap.Error(err))
			}
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}
	msg := update.Message

	if msg.Chat.ID != b.chatID {
		_, err := b.sendMessage(msg.Chat.ID, "⛔ You are not authorized to use this bot.")
		return err
	}

	cmd, args, ok := channels.ParseCommand(msg.Text)
	if !ok {
		return nil
	}
	if b.control == nil {
		_, err := b.sendMessage(msg.Chat.ID, "Reminders are not available.")
		return err
	}

	_, err := b.sendMessage(msg.Chat.ID, channels.Reply(b.control, cmd, args))
	return err
}

// Alert sends a reminder alert to the configured chat
func (b *Bot) Alert(_ context.Context, a reminders.Alert) error {
	if !b.enabled {
		return apperrors.ErrChannelNotConfigured
	}
	text := fmt.Sprintf("🔔 *%s*\n\n%s\n\n/done %s  ·  /snooze %s", a.Title, a.Message, a.ReminderID, a.ReminderID)
	if _, err := b.sendMessage(b.chatID, text); err != nil {
		return apperrors.Wrap(err, apperrors.ErrChannelUnavailable.Code, "telegram send failed")
	}
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.send.Send(msg)
	if err != nil {
		// Try without markdown if it fails
		msg.ParseMode = ""
		sent, err = b.send.Send(msg)
		if err != nil {
			return 0, err
		}
	}

	return sent.MessageID, nil
}
