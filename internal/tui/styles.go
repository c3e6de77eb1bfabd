// ABOUTME: Lipgloss palette and styles for the research dashboard
// ABOUTME: Maps agent status, toast level and connection state to colors

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

var (
	primaryColor   = lipgloss.Color("#fab283")
	secondaryColor = lipgloss.Color("#5c9cf5")
	errorColor     = lipgloss.Color("#e06c75")
	warningColor   = lipgloss.Color("#f5a742")
	successColor   = lipgloss.Color("#7fd88f")
	infoColor      = lipgloss.Color("#56b6c2")
	textColor      = lipgloss.Color("#eeeeee")
	mutedColor     = lipgloss.Color("#808080")
	borderColor    = lipgloss.Color("#484848")
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle  = mutedStyle
	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	nodeStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1).
			Width(24)

	arrowStyle       = lipgloss.NewStyle().Foreground(mutedColor)
	activeArrowStyle = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	rejectLoopStyle  = lipgloss.NewStyle().Foreground(errorColor)
	completeStyle    = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#0a0a0a")).
				Background(successColor).
				Bold(true).
				Padding(0, 1)

	toastStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			PaddingLeft(1)
)

func statusColor(s workflow.AgentStatus) lipgloss.Color {
	switch s {
	case workflow.AgentThinking:
		return secondaryColor
	case workflow.AgentApproved:
		return successColor
	case workflow.AgentRejected:
		return errorColor
	default:
		return mutedColor
	}
}

func levelColor(l workflow.Level) lipgloss.Color {
	switch l {
	case workflow.LevelSuccess:
		return successColor
	case workflow.LevelWarning:
		return warningColor
	case workflow.LevelError:
		return errorColor
	default:
		return infoColor
	}
}

func connColor(s transport.State) lipgloss.Color {
	switch s {
	case transport.StateConnected:
		return successColor
	case transport.StateConnecting, transport.StateReconnecting:
		return warningColor
	case transport.StateGaveUp:
		return errorColor
	default:
		return textColor
	}
}
