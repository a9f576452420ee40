package theme

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Style is a resolved display style for a span of text. A nil Color means
// the style is explicitly empty: it overrides nothing, letting underlying
// lexical highlighting show through.
type Style struct {
	Color *colorful.Color
}

// HasColor reports whether the style carries an explicit color.
func (s Style) HasColor() bool {
	return s.Color != nil
}

// WithColor wraps a color in a style.
func WithColor(c colorful.Color) Style {
	return Style{Color: &c}
}

// SyntaxTheme maps syntax lookup keys (like "type.class.definition" or
// "variable") to styles, and carries an optional rainbow palette used for
// deterministic identifier coloring.
type SyntaxTheme struct {
	styles  map[string]Style
	rainbow []Style
}

// New builds a theme from a key/style table and a rainbow palette. Both may
// be empty.
func New(styles map[string]Style, rainbow []Style) *SyntaxTheme {
	if styles == nil {
		styles = map[string]Style{}
	}
	return &SyntaxTheme{styles: styles, rainbow: rainbow}
}

// Get returns the style registered for a lookup key.
func (t *SyntaxTheme) Get(key string) (Style, bool) {
	style, ok := t.styles[key]
	return style, ok
}

// RainbowPaletteSize returns the number of rainbow palette slots.
func (t *SyntaxTheme) RainbowPaletteSize() int {
	return len(t.rainbow)
}

// RainbowColor returns the palette slot at index, if the palette has one.
func (t *SyntaxTheme) RainbowColor(index int) (Style, bool) {
	if index < 0 || index >= len(t.rainbow) {
		return Style{}, false
	}
	return t.rainbow[index], true
}
