package ui

import "github.com/charmbracelet/lipgloss"

// Matrix color palette, plus one hue per kind of plan marker.
var (
	ColorMatrixGreen  = lipgloss.Color("#00FF41")
	ColorGreen        = lipgloss.Color("#00CC33")
	ColorMidGreen     = lipgloss.Color("#008F11")
	ColorDimGreen     = lipgloss.Color("#004A0A")
	ColorScanner      = lipgloss.Color("#3399FF")
	ColorRemote       = lipgloss.Color("#66CCFF")
	ColorFixed        = lipgloss.Color("#FF5544")
	ColorLocated      = lipgloss.Color("#00FFAA")
	ColorBorderBright = lipgloss.Color("#00FF41")
	ColorBorderNorm   = lipgloss.Color("#00AA22")
	ColorError        = lipgloss.Color("#FF3300")
	ColorWarning      = lipgloss.Color("#FFAA00")
)

var (
	StyleMenuBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleMenuLabel = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorGreen).
			Padding(0, 1)

	StyleStatusScanning = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleStatusPaused = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)

	StylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderNorm)

	StylePanelActive = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderBright)

	StylePanelTitle = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleDeviceName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleDeviceAddr = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleDeviceRSSI = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleTagScanner = lipgloss.NewStyle().
			Foreground(ColorScanner)

	StyleTagRemote = lipgloss.NewStyle().
			Foreground(ColorRemote)

	StyleTagFixed = lipgloss.NewStyle().
			Foreground(ColorFixed)

	StyleTagLocated = lipgloss.NewStyle().
			Foreground(ColorLocated)

	StyleFilterActive = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleFilterInactive = lipgloss.NewStyle().
				Foreground(ColorDimGreen)

	StyleSeparator = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDimGreen)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)
)
