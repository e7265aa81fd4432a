package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorWaiting   = lipgloss.Color("240") // gray
	colorWorking   = lipgloss.Color("33")  // blue
	colorAgent     = lipgloss.Color("135") // purple
	colorPushing   = lipgloss.Color("214") // orange
	colorSucceeded = lipgloss.Color("46")  // green
	colorFailed    = lipgloss.Color("196") // red

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingLeft(1).
			PaddingRight(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginTop(1)

	currentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("cyan"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func phaseIcon(phase string) string {
	switch phase {
	case "discovered":
		return "🔍"
	case "workspace_prepared":
		return "📁"
	case "agent_invoked":
		return "🤖"
	case "committed":
		return "📝"
	case "no_changes":
		return "∅"
	case "pr_created":
		return "🔀"
	case "issue_updated":
		return "💬"
	default:
		return "❓"
	}
}

func phaseColor(phase string) lipgloss.Color {
	switch phase {
	case "discovered":
		return colorWaiting
	case "workspace_prepared", "committed":
		return colorWorking
	case "agent_invoked":
		return colorAgent
	case "pr_created", "issue_updated":
		return colorPushing
	case "no_changes":
		return colorSucceeded
	default:
		return lipgloss.Color("252")
	}
}

func statusIcon(status string) string {
	switch status {
	case "succeeded":
		return "✅"
	case "failed":
		return "❌"
	default:
		return "•"
	}
}

func statusColor(status string) lipgloss.Color {
	switch status {
	case "succeeded":
		return colorSucceeded
	case "failed":
		return colorFailed
	default:
		return lipgloss.Color("252")
	}
}
