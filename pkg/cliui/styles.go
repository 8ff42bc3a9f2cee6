// Package cliui holds the terminal styling, spinner and markdown helpers
// shared by the chatrelay commands.
package cliui

import "github.com/charmbracelet/lipgloss"

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	KeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	NameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	WarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	UserPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	AssistantPrompt = DimStyle.Render("assistant> ")

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}
