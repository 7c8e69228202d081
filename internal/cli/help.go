package cli

import (
	"fmt"
	"io"
)

func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `Glucotrack %s - diabetes reminder tracker

Usage:
  glucotrack <command> [arguments]

Commands:
  serve                         Run the API server, reminder ticks and chat bots
  reminders [category]          List today's reminders (meal, insulin, activity)
  reminders read <id>           Mark a reminder as read
  reminders done <id>           Mark a reminder as done
  notes <patient-id>            Show the care team's notes
  notes <patient-id> check <id> Tick or untick a note
  passwd [patient-id]           Set the password used to sign in to the API
  config [show|get|path]        Inspect the configuration
  status                        Show configuration and channel status
  version                       Print the version

Flags (before the command):
  -config <file>   Path to config file
  -data <dir>      Path to data directory
`, Version)
}

func PrintRemindersHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: glucotrack reminders [list] [meal|insulin|activity|all]")
	fmt.Fprintln(w, "       glucotrack reminders read <id>")
	fmt.Fprintln(w, "       glucotrack reminders done <id>")
}

func PrintConfigHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: glucotrack config <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  show        Print the effective configuration as YAML, secrets masked")
	fmt.Fprintln(w, "  get <key>   Print one value, e.g. reminders.timezone")
	fmt.Fprintln(w, "  path        Print the data directory")
}
