package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
	dark "github.com/thiagokokada/dark-mode-go"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// currentTheme holds the active theme (set at init)
var currentTheme Theme = ThemeDark

// Dark Theme - Tokyo Night
var darkColors = struct {
	Border, Text, TextDim      lipgloss.Color
	Accent, Green, Red, Yellow lipgloss.Color
}{
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Green:   lipgloss.Color("#9ece6a"),
	Red:     lipgloss.Color("#f7768e"),
	Yellow:  lipgloss.Color("#e0af68"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = struct {
	Border, Text, TextDim      lipgloss.Color
	Accent, Green, Red, Yellow lipgloss.Color
}{
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Green:   lipgloss.Color("#485e30"),
	Red:     lipgloss.Color("#8c4351"),
	Yellow:  lipgloss.Color("#8f5e15"),
}

// Active color variables (set by InitTheme)
var (
	ColorBorder  lipgloss.Color
	ColorText    lipgloss.Color
	ColorTextDim lipgloss.Color
	ColorAccent  lipgloss.Color
	ColorGreen   lipgloss.Color
	ColorRed     lipgloss.Color
	ColorYellow  lipgloss.Color
)

// themeMu protects global color/style variables during theme switches.
var themeMu sync.Mutex

// Styles rebuilt by applyTheme.
var (
	titleStyle    lipgloss.Style
	statusStyle   lipgloss.Style
	headerStyle   lipgloss.Style
	rowStyle      lipgloss.Style
	selectedStyle lipgloss.Style
	onStyle       lipgloss.Style
	offStyle      lipgloss.Style
	helpStyle     lipgloss.Style
	errorStyle    lipgloss.Style
)

// InitTheme sets the active theme. "system" resolves against the OS dark
// mode setting, falling back to dark when detection fails.
func InitTheme(theme string) {
	resolved := ThemeDark
	switch theme {
	case "light":
		resolved = ThemeLight
	case "system":
		if isDark, err := dark.IsDarkMode(); err == nil && !isDark {
			resolved = ThemeLight
		}
	}
	applyTheme(resolved)
}

// CurrentTheme returns the resolved active theme.
func CurrentTheme() Theme {
	themeMu.Lock()
	defer themeMu.Unlock()
	return currentTheme
}

func applyTheme(theme Theme) {
	themeMu.Lock()
	defer themeMu.Unlock()

	currentTheme = theme
	c := darkColors
	if theme == ThemeLight {
		c = lightColors
	}

	ColorBorder = c.Border
	ColorText = c.Text
	ColorTextDim = c.TextDim
	ColorAccent = c.Accent
	ColorGreen = c.Green
	ColorRed = c.Red
	ColorYellow = c.Yellow

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	statusStyle = lipgloss.NewStyle().Foreground(ColorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorTextDim)
	rowStyle = lipgloss.NewStyle().Foreground(ColorText)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	onStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	offStyle = lipgloss.NewStyle().Foreground(ColorTextDim)
	helpStyle = lipgloss.NewStyle().Foreground(ColorTextDim)
	errorStyle = lipgloss.NewStyle().Foreground(ColorRed)
}

func init() {
	applyTheme(ThemeDark)
}
