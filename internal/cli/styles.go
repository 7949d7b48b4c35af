// Package cli provides the interactive chat front end, styled with lipgloss.
package cli

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/parcel/internal/model"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#5E81AC")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	// FieldStyle labels preview fields.
	FieldStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Width(18)

	// BoxStyle frames proposals.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(0, 1)

	// PromptStyle is used for the input prompt.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon  = "✓"
	ErrorIcon    = "✗"
	WarningIcon  = "!"
	QuestionIcon = "?"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an informational message.
func FormatInfo(message string) string {
	return SubtleStyle.Render(message)
}

// FormatQuestion formats a clarification.
func FormatQuestion(message string) string {
	return WarningStyle.Render(QuestionIcon + " " + message)
}

// FormatPrompt formats the input prompt.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " › ")
}

// RenderProposal draws a pending operation as a titled box of field lines.
func RenderProposal(op model.PendingOperation) string {
	lines := make([]string, 0, len(op.Preview)+2)
	lines = append(lines, TitleStyle.Render(op.Kind.Title()))
	for _, l := range op.Preview {
		lines = append(lines, FieldStyle.Render(strings.ReplaceAll(l.Field, "_", " "))+l.Value)
	}
	if op.Conflict != nil {
		lines = append(lines, WarningStyle.Render("conflicts with record #"+strconv.FormatInt(op.Conflict.RecordID, 10)))
	}
	lines = append(lines, SubtleStyle.Render("expires "+op.ExpiresAt.Format("15:04:05")))
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
