// Package ui renders reminder lists for the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/reminder"
)

const timeLayout = "Mon 02 Jan 2006 15:04"

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")). // Bright cyan
			Bold(true)

	NameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	OverdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")). // Coral red
			Bold(true)

	CompletedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")). // Dim gray
			Strikethrough(true)

	RepeatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("147")) // Light purple

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")). // Green
			Bold(true)
)

type Formatter struct {
	colored bool
	loc     *time.Location
}

// NewFormatter renders times in loc; nil means local time.
func NewFormatter(colored bool, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{colored: colored, loc: loc}
}

func (f *Formatter) render(style lipgloss.Style, s string) string {
	if f.colored {
		return style.Render(s)
	}
	return s
}

// FormatHeader shows the active filter, sort order and search query.
func (f *Formatter) FormatHeader(p preferences.Preferences, query string, count int) string {
	title := fmt.Sprintf("%s reminders (%d)", capitalize(string(p.Filter)), count)
	meta := "sorted " + strings.ReplaceAll(string(p.SortOrder), "_", " ")
	if query != "" {
		meta += fmt.Sprintf(", matching %q", query)
	}
	return f.render(HeaderStyle, title) + " " + f.render(DimStyle, meta)
}

// FormatReminder renders one line per reminder plus an indented notes line.
func (f *Formatter) FormatReminder(r reminder.Reminder, now time.Time) string {
	id := f.render(DimStyle, fmt.Sprintf("#%-4d", r.ID))
	when := r.StartDateTime.In(f.loc).Format(timeLayout)

	var name string
	switch {
	case r.Completed:
		name = f.render(CompletedStyle, r.Name)
	case r.StartDateTime.Before(now):
		name = f.render(OverdueStyle, r.Name)
		when += " (overdue)"
	default:
		name = f.render(NameStyle, r.Name)
	}

	line := fmt.Sprintf("%s %s  %s", id, name, f.render(DimStyle, when))
	if r.RepeatInterval != nil {
		line += "  " + f.render(RepeatStyle, r.RepeatInterval.String())
	}
	if !r.Notify {
		line += "  " + f.render(DimStyle, "[silent]")
	}
	if r.Notes != "" {
		line += "\n      " + f.render(DimStyle, r.Notes)
	}
	return line
}

// FormatList renders a derived list under its header.
func (f *Formatter) FormatList(items []reminder.Reminder, p preferences.Preferences, query string, now time.Time) string {
	lines := []string{f.FormatHeader(p, query, len(items))}
	if len(items) == 0 {
		lines = append(lines, f.render(DimStyle, "  nothing here"))
	}
	for _, r := range items {
		lines = append(lines, f.FormatReminder(r, now))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) FormatError(err error) string {
	return f.render(ErrorStyle, "Error: ") + err.Error()
}

func (f *Formatter) FormatSuccess(msg string) string {
	return f.render(SuccessStyle, msg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
