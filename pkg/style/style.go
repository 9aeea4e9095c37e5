// Package style derives colors and marker sizes deterministically from keys
// and scores. Nothing here keeps state.
package style

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Theme selects the lightness range of generated hues.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme maps unknown values to ThemeDark.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// Palette is the fixed categorical palette used for edges and city markers.
var Palette = []colorful.Color{
	mustHex("#3b82f6"), // blue
	mustHex("#22c55e"), // green
	mustHex("#f97316"), // orange
	mustHex("#a855f7"), // purple
	mustHex("#ef4444"), // red
	mustHex("#eab308"), // yellow
	mustHex("#ec4899"), // pink
	mustHex("#06b6d4"), // cyan
	mustHex("#84cc16"), // lime
	mustHex("#d946ef"), // magenta
}

var (
	// ClaimedColor re-skins nodes that have a claim record.
	ClaimedColor = mustHex("#ffd700")
	// MajorCityColor marks cities with many activities.
	MajorCityColor = mustHex("#ffd700")

	importanceLow  = colorful.Color{R: 255.0 / 255, G: 100.0 / 255, B: 100.0 / 255}
	importanceHigh = colorful.Color{R: 100.0 / 255, G: 255.0 / 255, B: 100.0 / 255}

	locationStart = colorful.Color{R: 139.0 / 255, G: 92.0 / 255, B: 246.0 / 255}
	locationEnd   = colorful.Color{R: 245.0 / 255, G: 158.0 / 255, B: 11.0 / 255}
)

// MaxImportance is the score that maps to the high end of the gradient.
const MaxImportance = 10.0

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hash is a 31-multiplier polynomial string hash with 32-bit wraparound.
// The empty string hashes to 0.
func Hash(key string) uint32 {
	var h uint32
	for _, r := range key {
		h = h*31 + uint32(r)
	}
	return h
}

// PaletteColor picks a palette entry for key. The same key always gets the
// same entry.
func PaletteColor(key string) colorful.Color {
	return Palette[Hash(key)%uint32(len(Palette))]
}

// PaletteIndex returns the palette entry at i, cycling past the end.
func PaletteIndex(i int) colorful.Color {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

// HueColor derives an HSL color whose hue comes from the key hash. Dark
// themes get light colors and light themes get dark ones.
func HueColor(key string, theme Theme) colorful.Color {
	hue := float64(Hash(key) % 360)
	if theme == ThemeLight {
		return colorful.Hsl(hue, 0.65, 0.35)
	}
	return colorful.Hsl(hue, 0.70, 0.65)
}

// LocationColor places key on a purple to orange gradient.
func LocationColor(key string) colorful.Color {
	t := float64(Hash(key)) / math.MaxUint32
	return locationStart.BlendRgb(locationEnd, t)
}

// ImportanceColor interpolates linearly from red to green. Scores are
// clamped to [0, MaxImportance].
func ImportanceColor(score float64) colorful.Color {
	t := math.Max(0, math.Min(score/MaxImportance, 1))
	return importanceLow.BlendRgb(importanceHigh, t)
}

// Hex renders c as #rrggbb.
func Hex(c colorful.Color) string {
	return c.Clamped().Hex()
}

// RGBA renders c as a css rgba() string with the given alpha.
func RGBA(c colorful.Color, alpha float64) string {
	r, g, b := c.Clamped().RGB255()
	return fmt.Sprintf("rgba(%d, %d, %d, %.2f)", r, g, b, alpha)
}
