package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/gmsas95/glucotrack/internal/reminders"
	"github.com/gmsas95/glucotrack/internal/tracking"
)

var statusColors = map[reminders.Status]lipgloss.Color{
	reminders.StatusCompleted: lipgloss.Color("10"),
	reminders.StatusCurrent:   lipgloss.Color("11"),
	reminders.StatusMissed:    lipgloss.Color("9"),
	reminders.StatusUpcoming:  lipgloss.Color("8"),
}

// RenderReminders lays views out as a table. Colors are only emitted when
// w is a terminal that supports them.
func RenderReminders(w io.Writer, views []reminders.View, unread int) string {
	if len(views) == 0 {
		return "No notifications right now\n"
	}

	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Underline(true)
	cols := []int{11, 10, 22, 9}
	cell := func(i int) lipgloss.Style { return r.NewStyle().Width(cols[i]).PaddingRight(1) }

	var sb strings.Builder
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		cell(0).Inherit(header).Render("STATUS"),
		cell(1).Inherit(header).Render("TIME"),
		cell(2).Inherit(header).Render("TITLE"),
		cell(3).Inherit(header).Render("ID"),
	))
	sb.WriteString("\n")

	for _, v := range views {
		status := cell(0).Foreground(statusColors[v.Status])
		title := cell(2)
		if !v.Read && !v.Done {
			title = title.Bold(true)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			status.Render(string(v.Status)),
			cell(1).Render(v.Time),
			title.Render(v.Title),
			cell(3).Faint(true).Render(v.ID),
		))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nUnread: %d\n", unread)
	return sb.String()
}

// notesMarkdown renders notes newest first as a markdown task list
func notesMarkdown(notes []tracking.DoctorNote, checked []string) string {
	ticked := make(map[string]bool, len(checked))
	for _, id := range checked {
		ticked[id] = true
	}

	var sb strings.Builder
	sb.WriteString("# Doctor notes\n\n")
	if len(notes) == 0 {
		sb.WriteString("_No notes from your care team yet._\n")
		return sb.String()
	}
	for _, n := range notes {
		box := " "
		if ticked[n.ID] {
			box = "x"
		}
		fmt.Fprintf(&sb, "## %s\n\n- [%s] %s\n\n`%s`\n\n", n.CreatedAt.Format("Jan 2, 2006"), box, n.Text(), n.ID)
	}
	return sb.String()
}

// RenderNotes formats doctor notes for the terminal with glamour
func RenderNotes(notes []tracking.DoctorNote, checked []string, styled bool) (string, error) {
	style := "notty"
	if styled {
		style = "auto"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return r.Render(notesMarkdown(notes, checked))
}
