package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"
)

// Palette defines the indicator colors.
type Palette struct {
	Background color.NRGBA
	Surface    color.NRGBA
	Text       color.NRGBA
	TextMuted  color.NRGBA
	Idle       color.NRGBA
	Recording  color.NRGBA
	Locked     color.NRGBA
	Success    color.NRGBA
	Error      color.NRGBA
}

// Config defines the indicator metrics.
type Config struct {
	CornerRadius unit.Dp
	Padding      unit.Dp
	DotSize      unit.Dp
	FontState    unit.Sp
	FontDetail   unit.Sp
}

// Theme wraps the material theme with indicator styling.
type Theme struct {
	*material.Theme
	Palette Palette
	Config  Config
}

// NewTheme creates a theme tuned to the current OS.
func NewTheme(mtheme *material.Theme) *Theme {
	t := &Theme{
		Theme: mtheme,
		Palette: Palette{
			Background: color.NRGBA{R: 0x1E, G: 0x1E, B: 0x1E, A: 0xFF},
			Surface:    color.NRGBA{R: 0x2A, G: 0x2A, B: 0x2A, A: 0xFF},
			Text:       color.NRGBA{R: 0xF5, G: 0xF5, B: 0xF7, A: 0xFF},
			TextMuted:  color.NRGBA{R: 0x8E, G: 0x8E, B: 0x93, A: 0xFF},
			Idle:       color.NRGBA{R: 0x8E, G: 0x8E, B: 0x93, A: 0xFF},
			Recording:  color.NRGBA{R: 0xFF, G: 0x45, B: 0x3A, A: 0xFF},
			Locked:     color.NRGBA{R: 0xFF, G: 0x9F, B: 0x0A, A: 0xFF},
			Success:    color.NRGBA{R: 0x30, G: 0xD1, B: 0x58, A: 0xFF},
			Error:      color.NRGBA{R: 0xFF, G: 0x45, B: 0x3A, A: 0xFF},
		},
		Config: Config{
			CornerRadius: unit.Dp(10),
			Padding:      unit.Dp(16),
			DotSize:      unit.Dp(14),
			FontState:    unit.Sp(16),
			FontDetail:   unit.Sp(12),
		},
	}

	// Platform corner radius conventions differ.
	if runtime.GOOS == "windows" {
		t.Config.CornerRadius = unit.Dp(4)
	}

	return t
}
