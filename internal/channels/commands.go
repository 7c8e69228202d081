// Package channels holds the chat command surface shared by the chat alert
// sinks. Each sink lives in its own subpackage.
package channels

import (
	"fmt"
	"strings"
	"time"

	"github.com/gmsas95/glucotrack/internal/reminders"
)

// ReminderControl is what chat commands may do with the reminder tracker
type ReminderControl interface {
	Views(c reminders.Category, now time.Time) []reminders.View
	Now() time.Time
	UnreadCount() int
	MarkRead(id string) (reminders.Reminder, error)
	MarkDone(id string) (reminders.Reminder, error)
	Snooze(id string) (*reminders.SnoozeHandle, error)
}

const HelpText = `Glucotrack reminders

/reminders [meal|insulin|activity] - today's reminders
/read <id> - mark a reminder as read
/done <id> - mark a reminder as done
/snooze <id> - remind again later
/help - show this help`

var statusIcons = map[reminders.Status]string{
	reminders.StatusCompleted: "✅",
	reminders.StatusCurrent:   "⏰",
	reminders.StatusMissed:    "⚠️",
	reminders.StatusUpcoming:  "🕒",
}

// FormatViews renders reminders one per line
func FormatViews(views []reminders.View) string {
	if len(views) == 0 {
		return "No notifications right now"
	}
	var sb strings.Builder
	for i, v := range views {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %s %s (%s)", statusIcons[v.Status], v.Time, v.Title, v.ID)
	}
	return sb.String()
}

// Reply executes a chat command and returns the text to send back. command
// is given without its leading slash.
func Reply(ctl ReminderControl, command string, args []string) string {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	switch command {
	case "start", "help":
		return HelpText

	case "reminders", "list":
		c, err := reminders.ParseCategory(arg)
		if err != nil {
			return "❓ " + err.Error()
		}
		return fmt.Sprintf("%s\n\nUnread: %d", FormatViews(ctl.Views(c, ctl.Now())), ctl.UnreadCount())

	case "read":
		if arg == "" {
			return "Usage: /read <id>"
		}
		r, err := ctl.MarkRead(arg)
		if err != nil {
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("👀 %s\n\n%s", r.Title, r.Message)

	case "done":
		if arg == "" {
			return "Usage: /done <id>"
		}
		r, err := ctl.MarkDone(arg)
		if err != nil {
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("✅ %s marked as done", r.Title)

	case "snooze":
		if arg == "" {
			return "Usage: /snooze <id>"
		}
		h, err := ctl.Snooze(arg)
		if err != nil {
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("😴 Snoozed. You will be reminded again at %s.", h.FireAt.Format("03:04 PM"))

	default:
		return "❓ Unknown command. Use /help for available commands."
	}
}

// ParseCommand splits "/done notif-1" into its command and arguments. ok is
// false for text that is not a command.
func ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text[1:])
	if len(parts) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(parts[0])
	// Telegram appends the bot name in groups: /done@glucobot
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, parts[1:], true
}
