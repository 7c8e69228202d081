// Package discord provides Discord bot integration
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gmsas95/glucotrack/internal/channels"
	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"go.uber.org/zap"
)

const maxMessageLen = 2000

// Config holds Discord bot configuration
type Config struct {
	Token     string
	Enabled   bool
	ChannelID string // channel that receives alerts and accepts commands
}

// sendFunc posts content to a channel
type sendFunc func(channelID, content string) error

// Bot represents a Discord bot instance
type Bot struct {
	session *discordgo.Session
	send    sendFunc
	control channels.ReminderControl
	config  Config
	logger  *zap.Logger
	selfID  string
}

// NewBot creates a new Discord bot
func NewBot(cfg Config, control channels.ReminderControl, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session: session,
		send: func(channelID, content string) error {
			_, err := session.ChannelMessageSend(channelID, content)
			return err
		},
		control: control,
		config:  cfg,
		logger:  logger,
	}

	session.AddHandler(bot.ready)
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		bot.handleMessage(m.Message)
	})
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return bot, nil
}

// Start starts the Discord bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	b.logger.Info("Discord bot started",
		zap.String("username", b.session.State.User.Username),
	)

	return nil
}

// Stop stops the Discord bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) ready(s *discordgo.Session, event *discordgo.Ready) {
	b.selfID = event.User.ID
	b.logger.Info("Discord bot ready",
		zap.String("username", event.User.Username),
		zap.Int("guilds", len(event.Guilds)),
	)
}

// handleMessage answers reminder commands posted in the configured channel
func (b *Bot) handleMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == b.selfID {
		return
	}
	if m.ChannelID != b.config.ChannelID {
		return
	}

	cmd, args, ok := channels.ParseCommand(m.Content)
	if !ok || b.control == nil {
		return
	}

	for _, part := range splitMessage(channels.Reply(b.control, cmd, args), maxMessageLen) {
		if err := b.send(m.ChannelID, part); err != nil {
			b.logger.Error("Failed to reply on discord", zap.Error(err))
			return
		}
	}
}

// Alert posts a reminder alert to the configured channel
func (b *Bot) Alert(_ context.Context, a reminders.Alert) error {
	if b.config.ChannelID == "" {
		return apperrors.ErrChannelNotConfigured
	}
	text := fmt.Sprintf("🔔 **%s**\n%s\n`/done %s` · `/snooze %s`", a.Title, a.Message, a.ReminderID, a.ReminderID)
	if err := b.send(b.config.ChannelID, text); err != nil {
		return apperrors.Wrap(err, apperrors.ErrChannelUnavailable.Code, "discord send failed")
	}
	return nil
}

// splitMessage splits a message into chunks under max length
func splitMessage(text string, maxLen int) []string {
	var parts []string
	lines := strings.Split(text, "\n")
	var current strings.Builder

	for _, line := range lines {
		if current.Len()+len(line)+1 > maxLen {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
