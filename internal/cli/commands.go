package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gmsas95/glucotrack/internal/config"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gmsas95/glucotrack/internal/tracking"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var Version = "dev"

// ErrUsage is returned when a command is called with the wrong arguments.
// The usage line has already been written.
var ErrUsage = errors.New("usage")

// Env is what the terminal commands operate on. Tracker must be loaded.
type Env struct {
	In       io.Reader
	Out      io.Writer
	Config   *config.Config
	Tracker  *reminders.Tracker
	Tracking *tracking.Store
	Styled   bool
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (e *Env) usage(line string) error {
	fmt.Fprintf(e.Out, "Usage: glucotrack %s\n", line)
	return ErrUsage
}

func HandleRemindersCommand(env *Env, args []string) error {
	if len(args) == 0 {
		return listReminders(env, "")
	}

	switch args[0] {
	case "list", "ls":
		cat := ""
		if len(args) > 1 {
			cat = args[1]
		}
		return listReminders(env, cat)

	case "read", "done":
		if len(args) < 2 {
			return env.usage("reminders " + args[0] + " <id>")
		}
		var (
			r   reminders.Reminder
			err error
		)
		if args[0] == "read" {
			r, err = env.Tracker.MarkRead(args[1])
		} else {
			r, err = env.Tracker.MarkDone(args[1])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "✓ %s marked %s\n", r.Title, args[0])
		return nil

	case "snooze":
		fmt.Fprintln(env.Out, "Snoozing needs a running server. Use the app or a chat bot while `glucotrack serve` is up.")
		return nil

	case "help", "-h", "--help":
		PrintRemindersHelp(env.Out)
		return nil

	default:
		// glucotrack reminders insulin
		return listReminders(env, args[0])
	}
}

func listReminders(env *Env, category string) error {
	cat, err := reminders.ParseCategory(category)
	if err != nil {
		return err
	}
	views := env.Tracker.Views(cat, env.Tracker.Now())
	fmt.Fprint(env.Out, RenderReminders(env.Out, views, env.Tracker.UnreadCount()))
	return nil
}

func HandleNotesCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return env.usage("notes <patient-id> [check <note-id>]")
	}
	patientID := args[0]

	if len(args) >= 3 && args[1] == "check" {
		on, err := env.Tracking.ToggleNoteChecked(ctx, patientID, args[2])
		if err != nil {
			return err
		}
		state := "unchecked"
		if on {
			state = "checked"
		}
		fmt.Fprintf(env.Out, "✓ Note %s %s\n", args[2], state)
		return nil
	}

	notes, err := env.Tracking.ListNotes(ctx, patientID)
	if err != nil {
		return err
	}
	checked, err := env.Tracking.CheckedNotes(patientID)
	if err != nil {
		return err
	}

	out, err := RenderNotes(notes, checked, env.Styled)
	if err != nil {
		return err
	}
	fmt.Fprint(env.Out, out)
	return nil
}

// HandlePasswdCommand sets the password the patient signs in to the API
// with. The patient defaults to patient.id. On a terminal the password is
// read without echo; otherwise the first line of input is used.
func HandlePasswdCommand(ctx context.Context, env *Env, args []string) error {
	patientID := env.Config.Patient.ID
	if len(args) > 0 {
		patientID = args[0]
	}
	if patientID == "" {
		return env.usage("passwd <patient-id>")
	}

	password, err := readPassword(env)
	if err != nil {
		return err
	}
	if err := env.Tracking.SetPassword(ctx, patientID, password); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "✓ Password set for %s\n", patientID)
	return nil
}

func readPassword(env *Env) (string, error) {
	if f, ok := env.In.(*os.File); ok && IsTerminal(f) {
		fmt.Fprint(env.Out, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(env.Out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	if env.In == nil {
		return "", errors.New("no input to read the password from")
	}
	line, err := bufio.NewReader(env.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func HandleConfigCommand(env *Env, args []string) error {
	if len(args) == 0 {
		PrintConfigHelp(env.Out)
		return nil
	}

	switch args[0] {
	case "show", "view":
		data, err := yaml.Marshal(redacted(env.Config))
		if err != nil {
			return err
		}
		_, err = env.Out.Write(data)
		return err

	case "get":
		if len(args) < 2 {
			return env.usage("config get <key>  (e.g. reminders.timezone)")
		}
		v, err := lookup(redacted(env.Config), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Out, v)
		return nil

	case "path":
		fmt.Fprintln(env.Out, env.Config.Storage.DataDir)
		return nil

	default:
		PrintConfigHelp(env.Out)
		return nil
	}
}

// redacted returns a copy of cfg with secrets masked
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Security.JWTSecret = maskToken(c.Security.JWTSecret)
	c.Channels.Telegram.BotToken = maskToken(c.Channels.Telegram.BotToken)
	c.Channels.Discord.Token = maskToken(c.Channels.Discord.Token)
	return c
}

// lookup resolves a dotted key against the yaml form of cfg
func lookup(cfg config.Config, key string) (interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var node interface{}
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}

	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unknown key: %s", key)
		}
		if node, ok = m[part]; !ok {
			return nil, fmt.Errorf("unknown key: %s", key)
		}
	}
	if _, ok := node.(map[string]interface{}); ok {
		return nil, fmt.Errorf("%s is a section, use `glucotrack config show`", key)
	}
	return node, nil
}

func HandleStatusCommand(env *Env) {
	cfg := env.Config
	fmt.Fprintln(env.Out, "Glucotrack Status")
	fmt.Fprintln(env.Out, "=================")
	fmt.Fprintln(env.Out)
	fmt.Fprintf(env.Out, "Version:   %s\n", Version)
	fmt.Fprintf(env.Out, "Data:      %s\n", cfg.Storage.DataDir)
	fmt.Fprintf(env.Out, "Time zone: %s\n", cfg.Reminders.Timezone)
	fmt.Fprintf(env.Out, "Server:    %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	patient := cfg.Patient.ID
	if patient == "" {
		patient = "(not set, serve will refuse to start)"
	}
	fmt.Fprintf(env.Out, "Patient:   %s\n", patient)
	if env.Tracker != nil {
		fmt.Fprintf(env.Out, "Unread:    %d\n", env.Tracker.UnreadCount())
	}
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, "Prediction:")
	fmt.Fprintf(env.Out, "  %s %s\n", channelStatus(cfg.Prediction.Enabled), cfg.Prediction.BaseURL)
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, "Channels:")
	fmt.Fprintf(env.Out, "  Telegram: %s\n", channelStatus(cfg.Channels.Telegram.Enabled))
	if cfg.Channels.Telegram.Enabled {
		fmt.Fprintf(env.Out, "    Bot Token: %s\n", maskToken(cfg.Channels.Telegram.BotToken))
	}
	fmt.Fprintf(env.Out, "  Discord:  %s\n", channelStatus(cfg.Channels.Discord.Enabled))
	if cfg.Channels.Discord.Enabled {
		fmt.Fprintf(env.Out, "    Token: %s\n", maskToken(cfg.Channels.Discord.Token))
	}
	fmt.Fprintf(env.Out, "  NATS:     %s\n", channelStatus(cfg.Channels.NATS.Enabled))
	if cfg.Channels.NATS.Enabled {
		fmt.Fprintf(env.Out, "    %s -> %s\n", cfg.Channels.NATS.URL, cfg.Channels.NATS.Subject)
	}
}

func channelStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
