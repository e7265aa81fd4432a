package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func renderView(snap Snapshot) string {
	var b strings.Builder

	header := fmt.Sprintf("issuepilot │ %s │ %d issues recorded", snap.Repo, snap.Processed)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Current issue"))
	b.WriteString("\n")
	b.WriteString(renderCurrent(snap.Current))

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Recent outcomes (%d)", len(snap.Recent))))
	b.WriteString("\n")
	b.WriteString(renderRecent(snap.Recent))

	b.WriteString("\n")
	footer := fmt.Sprintf("Last updated: %s │ q:quit r:refresh",
		snap.Timestamp.Format("15:04:05"))
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

func renderCurrent(c *Current) string {
	if c == nil {
		return emptyStyle.Render("  (idle, waiting for next poll)")
	}

	title := c.Title
	if runewidth.StringWidth(title) > 60 {
		title = runewidth.Truncate(title, 57, "...")
	}

	var b strings.Builder
	b.WriteString(currentStyle.Render(fmt.Sprintf("  %s  %s", c.Ref, title)))
	b.WriteString("\n")

	line := fmt.Sprintf("    %s %s (%s)", phaseIcon(c.Phase), c.Phase, formatDuration(time.Since(c.Started)))
	b.WriteString(lipgloss.NewStyle().Foreground(phaseColor(c.Phase)).Render(line))
	b.WriteString("\n")
	return b.String()
}

func renderRecent(outcomes []Outcome) string {
	if len(outcomes) == 0 {
		return emptyStyle.Render("  (nothing processed yet)")
	}

	var b strings.Builder
	for _, o := range outcomes {
		title := o.Title
		if runewidth.StringWidth(title) > 48 {
			title = runewidth.Truncate(title, 45, "...")
		}

		pr := ""
		if o.PRNumber > 0 {
			pr = fmt.Sprintf(" → PR #%d", o.PRNumber)
		}
		line := fmt.Sprintf("  %s %s %s%s", statusIcon(o.Status), o.Ref, title, pr)
		b.WriteString(lipgloss.NewStyle().Foreground(statusColor(o.Status)).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
