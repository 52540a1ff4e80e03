package color

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	suggestStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Italic(true)

	headerCell = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	bodyCell   = lipgloss.NewStyle().Padding(0, 1)
)

func ColorPrompt(s string) string {
	return promptStyle.Render(s)
}

func ColorInfo(s string) string {
	return infoStyle.Render(s)
}

func ColorWarning(s string) string {
	return warningStyle.Render(s)
}

func ColorError(s string) string {
	return errorStyle.Render(s)
}

func ColorAssistant(s string) string {
	return assistantStyle.Render(s)
}

func ColorUser(s string) string {
	return userStyle.Render(s)
}

func ColorDim(s string) string {
	return dimStyle.Render(s)
}

func ColorSuggestion(s string) string {
	return suggestStyle.Render(s)
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return bodyCell
		})
	return t.String()
}
