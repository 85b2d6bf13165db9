package tui

import "github.com/charmbracelet/lipgloss"

// Design language:
// - Bold text for labels and headers
// - Colors for semantic meaning (green=success, red=error, yellow=warning)
// - No emoticons - simple text prefixes like [OK], [FAIL], [!]

// Color palette (ANSI 256 colors for terminal compatibility)
const (
	ColorWhite   = lipgloss.Color("15")
	ColorGray    = lipgloss.Color("250")
	ColorDim     = lipgloss.Color("244")
	ColorDimmer  = lipgloss.Color("240")
	ColorSuccess = lipgloss.Color("2")
	ColorError   = lipgloss.Color("1")
	ColorWarning = lipgloss.Color("3")
	ColorInfo    = lipgloss.Color("6")
	ColorAccent  = lipgloss.Color("4")
)

// TitleStyle - report title (bold white on gray background)
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorDimmer).
	Padding(0, 1)

// HeaderStyle - section headers (bold gray)
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorDim)

// LabelStyle - field labels (bold cyan)
var LabelStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorInfo)

var SuccessStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorSuccess)

var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorError)

var WarningStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWarning)

var DimStyle = lipgloss.NewStyle().
	Foreground(ColorDim)
