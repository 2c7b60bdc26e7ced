package review

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the review screen.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorMagenta = lipgloss.Color("#FF00FF")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	EditBadgeStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	CommittedBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorGreen).
				Bold(true)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	TargetStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)
)

// speakerPalette colors speaker labels by their position in the speaker list
var speakerPalette = []lipgloss.Color{
	lipgloss.Color("#5FAFFF"),
	lipgloss.Color("#FFAF5F"),
	lipgloss.Color("#AFFF5F"),
	lipgloss.Color("#FF5FAF"),
	lipgloss.Color("#AF87FF"),
	lipgloss.Color("#5FFFD7"),
}

func speakerStyle(index int) lipgloss.Style {
	if index < 0 {
		return DimStyle
	}
	return lipgloss.NewStyle().Foreground(speakerPalette[index%len(speakerPalette)])
}
