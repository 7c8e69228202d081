package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for glucotrack
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Patient    PatientConfig    `mapstructure:"patient" yaml:"patient"`
	Reminders  RemindersConfig  `mapstructure:"reminders" yaml:"reminders"`
	Prediction PredictionConfig `mapstructure:"prediction" yaml:"prediction"`
	Channels   ChannelsConfig   `mapstructure:"channels" yaml:"channels"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// PatientConfig names the patient this install belongs to. The reminder
// set and device storage are theirs, so the API only signs them in.
type PatientConfig struct {
	ID string `mapstructure:"id" yaml:"id"`
}

// RemindersConfig controls the daily reminder tracker
type RemindersConfig struct {
	Enabled              bool   `mapstructure:"enabled" yaml:"enabled"`
	Timezone             string `mapstructure:"timezone" yaml:"timezone"`
	SnoozeMinutes        int    `mapstructure:"snooze_minutes" yaml:"snooze_minutes"`
	CurrentWindowMinutes int    `mapstructure:"current_window_minutes" yaml:"current_window_minutes"`
	TickSpec             string `mapstructure:"tick_spec" yaml:"tick_spec"`
}

// PredictionConfig holds glucose prediction service settings
type PredictionConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	Timeout         int    `mapstructure:"timeout" yaml:"timeout"`
	RPM             int    `mapstructure:"rpm" yaml:"rpm"`
	Burst           int    `mapstructure:"burst" yaml:"burst"`
	BreakerFailures int    `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown int    `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// ChannelsConfig holds alert sink settings
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord" yaml:"discord"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id" yaml:"chat_id"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Token     string `mapstructure:"token" yaml:"token"`
	ChannelID string `mapstructure:"channel_id" yaml:"channel_id"`
}

// NATSConfig holds NATS publisher settings
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL     int      `mapstructure:"token_ttl_hours" yaml:"token_ttl_hours"`
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// LogConfig selects the zap preset
type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath, dataDir string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "glucotrack.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "device"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "glucotrack.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (GLUCOTRACK_SERVER_PORT, GLUCOTRACK_REMINDERS_TIMEZONE, etc.)
	v.SetEnvPrefix("GLUCOTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch reloads the config file whenever it changes on disk and hands the
// new value to onChange. Invalid edits are reported through onError and the
// previous configuration stays in effect.
func Watch(configPath, dataDir string, onChange func(*Config), onError func(error)) error {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("patient.id", "")

	// Reminder defaults
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.timezone", "Asia/Manila")
	v.SetDefault("reminders.snooze_minutes", 15)
	v.SetDefault("reminders.current_window_minutes", 15)
	v.SetDefault("reminders.tick_spec", "* * * * *")

	// Prediction defaults
	v.SetDefault("prediction.enabled", true)
	v.SetDefault("prediction.base_url", "https://web-production-04ca1.up.railway.app")
	v.SetDefault("prediction.timeout", 15)
	v.SetDefault("prediction.rpm", 30)
	v.SetDefault("prediction.burst", 5)
	v.SetDefault("prediction.breaker_failures", 5)
	v.SetDefault("prediction.breaker_cooldown", 30)

	// Channel defaults
	v.SetDefault("channels.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("channels.nats.subject", "glucotrack.reminders")

	// Security defaults
	v.SetDefault("security.allow_origins", []string{"*"})
	v.SetDefault("security.token_ttl_hours", 24*7)

	v.SetDefault("log.format", "console")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "glucotrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "glucotrack")
}

// loadEnvOverrides resolves secrets that are commonly exported under
// unprefixed names
func loadEnvOverrides(cfg *Config) {
	if v := ResolveEnvWithAliases("GLUCOTRACK_CHANNELS_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Channels.Telegram.BotToken = v
	}
	if v := ResolveEnvWithAliases("GLUCOTRACK_CHANNELS_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Channels.Telegram.ChatID = id
		}
	}
	if v := ResolveEnvWithAliases("GLUCOTRACK_CHANNELS_DISCORD_TOKEN"); v != "" {
		cfg.Channels.Discord.Token = v
	}
	if v := ResolveEnvWithAliases("GLUCOTRACK_CHANNELS_NATS_URL"); v != "" {
		cfg.Channels.NATS.URL = v
	}
	if v := ResolveEnvWithAliases("GLUCOTRACK_PREDICTION_BASE_URL"); v != "" {
		cfg.Prediction.BaseURL = v
	}
	if v := ResolveEnvWithAliases("GLUCOTRACK_SECURITY_JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

func validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Reminders.Timezone); err != nil {
		return fmt.Errorf("reminders.timezone %q: %w", cfg.Reminders.Timezone, err)
	}
	if cfg.Reminders.SnoozeMinutes <= 0 {
		return fmt.Errorf("reminders.snooze_minutes must be positive")
	}
	if cfg.Reminders.CurrentWindowMinutes < 0 {
		return fmt.Errorf("reminders.current_window_minutes must not be negative")
	}
	if cfg.Prediction.Enabled && cfg.Prediction.BaseURL == "" {
		return fmt.Errorf("prediction.base_url is required when prediction is enabled")
	}
	if cfg.Channels.Telegram.Enabled && (cfg.Channels.Telegram.BotToken == "" || cfg.Channels.Telegram.ChatID == 0) {
		return fmt.Errorf("channels.telegram requires bot_token and chat_id")
	}
	if cfg.Channels.Discord.Enabled && (cfg.Channels.Discord.Token == "" || cfg.Channels.Discord.ChannelID == "") {
		return fmt.Errorf("channels.discord requires token and channel_id")
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

// generateRandomString returns n random bytes hex encoded. Tokens signed
// with it stop verifying on restart, which is acceptable for local use.
func generateRandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("glucotrack-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Location returns the reminder time zone. validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SnoozeDelay returns the configured snooze interval
func (c *Config) SnoozeDelay() time.Duration {
	return time.Duration(c.Reminders.SnoozeMinutes) * time.Minute
}

// CurrentWindow returns how close to its slot a reminder counts as current
func (c *Config) CurrentWindow() time.Duration {
	return time.Duration(c.Reminders.CurrentWindowMinutes) * time.Minute
}
