// Package app wires the store, reminder tracker, alert sinks, cron ticks and
// API server together and runs them until a shutdown signal.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmsas95/glucotrack/internal/api"
	"github.com/gmsas95/glucotrack/internal/channels/discord"
	"github.com/gmsas95/glucotrack/internal/channels/nats"
	"github.com/gmsas95/glucotrack/internal/channels/telegram"
	"github.com/gmsas95/glucotrack/internal/config"
	"github.com/gmsas95/glucotrack/internal/cron"
	"github.com/gmsas95/glucotrack/internal/metrics"
	"github.com/gmsas95/glucotrack/internal/prediction"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gmsas95/glucotrack/internal/store"
	"github.com/gmsas95/glucotrack/internal/tracking"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Store    *store.Store
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Tracker  *reminders.Tracker
	Tracking *tracking.Store
	Alerts   *reminders.MultiAlerter
	Version  string

	Server      *api.Server
	Predictor   *prediction.Client
	CronRunner  *cron.Runner
	TelegramBot *telegram.Bot
	DiscordBot  *discord.Bot
	NATS        *nats.Publisher

	serverErr chan error
}

// NewLogger builds the process logger. format "json" selects the production
// preset, anything else the development one.
func NewLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// New opens the on-disk store and builds the local components
func New(cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	st, err := store.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	a, err := NewWithStore(cfg, st, logger, version)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore builds the reminder tracker and the record store on st and
// loads today's reminders. Network services are only set up by Start.
func NewWithStore(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	m := metrics.New()
	alerts := reminders.NewMultiAlerter(reminders.NewLogAlerter(logger))

	tracker := reminders.NewTracker(st, alerts, logger,
		reminders.WithLocation(cfg.Location()),
		reminders.WithSnoozeDelay(cfg.SnoozeDelay()),
		reminders.WithCurrentWindow(cfg.CurrentWindow()),
		reminders.WithMetrics(m),
	)
	tracker.Load(context.Background())

	ts, err := tracking.NewStore(st.DB(), st, logger, m)
	if err != nil {
		tracker.Close()
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}
	ts.SetLocation(cfg.Location())

	return &App{
		Config:   cfg,
		Store:    st,
		Logger:   logger,
		Metrics:  m,
		Tracker:  tracker,
		Tracking: ts,
		Alerts:   alerts,
		Version:  version,
	}, nil
}

// Start brings up the prediction client, alert channels, reminder ticks and
// the API server. It returns once everything is listening or scheduled.
func (app *App) Start() error {
	cfg := app.Config
	if cfg.Patient.ID == "" {
		return fmt.Errorf("patient.id is required to serve; set GLUCOTRACK_PATIENT_ID")
	}

	deps := api.Deps{
		Tracker:  app.Tracker,
		Tracking: app.Tracking,
		Sessions: app.Store,
		Metrics:  app.Metrics,
	}
	if cfg.Prediction.Enabled {
		app.Predictor = prediction.NewClient(predictionConfig(cfg.Prediction), app.Logger, app.Metrics)
		deps.Predictor = app.Predictor
		go app.probePredictor()
	}

	api.Version = app.Version
	app.Server = api.New(cfg, deps, app.Logger)
	app.Alerts.Add(app.Server.Hub())

	app.startChannels()

	if cfg.Reminders.Enabled {
		runner, err := cron.NewRunner(cron.Config{
			TickSpec: cfg.Reminders.TickSpec,
			Location: cfg.Location(),
		}, app.Tracker, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to create cron runner: %w", err)
		}
		if err := runner.Start(); err != nil {
			return fmt.Errorf("failed to start cron runner: %w", err)
		}
		app.CronRunner = runner
		app.Logger.Info("Reminder ticks scheduled",
			zap.String("spec", cfg.Reminders.TickSpec),
			zap.Time("next", runner.NextRun(cron.TickJob)),
		)
	}

	app.serverErr = make(chan error, 1)
	go func() {
		app.serverErr <- app.Server.Start()
	}()

	app.Logger.Info("Glucotrack started",
		zap.String("version", app.Version),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
		zap.String("timezone", cfg.Reminders.Timezone),
		zap.Int("alert_sinks", app.Alerts.Len()),
	)
	return nil
}

func (app *App) probePredictor() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := app.Predictor.Health(ctx); err != nil {
		app.Logger.Warn("Prediction service unreachable", zap.Error(err))
		return
	}
	app.Logger.Info("Prediction service healthy", zap.String("breaker", app.Predictor.State()))
}

func predictionConfig(p config.PredictionConfig) prediction.Config {
	return prediction.Config{
		BaseURL:         p.BaseURL,
		Timeout:         time.Duration(p.Timeout) * time.Second,
		RPM:             p.RPM,
		Burst:           p.Burst,
		BreakerFailures: uint32(p.BreakerFailures),
		BreakerCooldown: time.Duration(p.BreakerCooldown) * time.Second,
	}
}

// startChannels connects the chat and messaging sinks. A sink that fails to
// come up is logged and skipped.
func (app *App) startChannels() {
	ch := app.Config.Channels

	if ch.Telegram.Enabled {
		bot, err := telegram.NewBot(telegram.Config{
			Token:   ch.Telegram.BotToken,
			Enabled: true,
			ChatID:  ch.Telegram.ChatID,
		}, app.Tracker, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Telegram bot", zap.Error(err))
		} else if !bot.Enabled() {
			app.Logger.Warn("Telegram bot has no token, skipping")
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Telegram bot", zap.Error(err))
		} else {
			app.TelegramBot = bot
			app.Alerts.Add(bot)
			app.Logger.Info("Telegram bot started")
		}
	}

	if ch.Discord.Enabled {
		bot, err := discord.NewBot(discord.Config{
			Token:     ch.Discord.Token,
			Enabled:   true,
			ChannelID: ch.Discord.ChannelID,
		}, app.Tracker, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Discord bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Discord bot", zap.Error(err))
		} else {
			app.DiscordBot = bot
			app.Alerts.Add(bot)
		}
	}

	if ch.NATS.Enabled {
		pub, err := nats.Connect(nats.Config{URL: ch.NATS.URL, Subject: ch.NATS.Subject}, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to connect to NATS", zap.Error(err))
		} else {
			app.NATS = pub
			app.Alerts.Add(pub)
			app.Logger.Info("Publishing reminder alerts to NATS", zap.String("subject", pub.Subject()))
		}
	}
}

// Reload applies a changed configuration. Only the reminder time zone is
// picked up live; other settings need a restart.
func (app *App) Reload(cfg *config.Config) {
	loc := cfg.Location()
	app.Tracker.SetLocation(loc)
	app.Tracking.SetLocation(loc)
	app.Config.Reminders.Timezone = cfg.Reminders.Timezone
}

// Watch reloads the config file on change
func (app *App) Watch(configPath, dataDir string) error {
	return config.Watch(configPath, dataDir, app.Reload, func(err error) {
		app.Logger.Warn("Ignoring invalid config change", zap.Error(err))
	})
}

// Wait blocks until ctx is done, a SIGINT or SIGTERM arrives, or the server
// stops on its own.
func (app *App) Wait(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-quit:
		app.Logger.Info("Received signal", zap.String("signal", sig.String()))
		return nil
	case err := <-app.serverErr:
		return err
	}
}

type shutdownStep struct {
	name string
	run  func()
}

// shutdownSteps lists teardown in order. Ticks and snoozes stop before the
// sinks they alert through go away.
func (app *App) shutdownSteps() []shutdownStep {
	return []shutdownStep{
		{"cron", func() {
			if app.CronRunner != nil {
				app.CronRunner.Stop()
			}
		}},
		{"tracker", app.Tracker.Close},
		{"server", func() {
			if app.Server != nil {
				if err := app.Server.Shutdown(); err != nil {
					app.Logger.Error("Server shutdown error", zap.Error(err))
				}
			}
		}},
		{"telegram", func() {
			if app.TelegramBot != nil {
				app.TelegramBot.Stop()
			}
		}},
		{"discord", func() {
			if app.DiscordBot != nil {
				if err := app.DiscordBot.Stop(); err != nil {
					app.Logger.Warn("Discord shutdown error", zap.Error(err))
				}
			}
		}},
		{"nats", func() {
			if app.NATS != nil {
				if err := app.NATS.Close(); err != nil {
					app.Logger.Warn("NATS close error", zap.Error(err))
				}
			}
		}},
		{"store", app.closeStore},
	}
}

// Shutdown stops everything Start brought up, then closes the store
func (app *App) Shutdown() {
	app.Logger.Info("Shutting down...")
	for _, step := range app.shutdownSteps() {
		step.run()
	}
}

// Close releases the tracker and the store
func (app *App) Close() {
	app.Tracker.Close()
	app.closeStore()
}

func (app *App) closeStore() {
	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}
}

// RunServer starts the app and blocks until shutdown
func (app *App) RunServer(ctx context.Context) error {
	if err := app.Start(); err != nil {
		app.Shutdown()
		return err
	}
	err := app.Wait(ctx)
	app.Shutdown()
	return err
}
