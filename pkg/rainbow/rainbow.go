/*
Package rainbow assigns deterministic, session-stable colors to identifiers.

The color of an identifier depends only on its text: a 64-bit FNV-1a hash is
spread with a golden-ratio multiply (Fibonacci hashing) so that similar or
sequential identifiers still land on well-distributed palette slots or hues.
Hash collisions are a known, accepted tradeoff: two distinct identifiers may
rarely share a color. That is cheaper than keying the cache by string and is
left as is.
*/
package rainbow

import (
	"sync"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/walteh/semhl/pkg/theme"
)

// Mode selects how a hashed identifier becomes a color.
type Mode int

const (
	// ThemePalette picks a slot from the theme's rainbow palette.
	ThemePalette Mode = iota
	// DynamicHSL derives a hue directly from the hash, with fixed saturation
	// and lightness.
	DynamicHSL
)

func (m Mode) String() string {
	switch m {
	case DynamicHSL:
		return "dynamic-hsl"
	default:
		return "theme-palette"
	}
}

const (
	fnvOffset             = 14695981039346656037
	fnvPrime              = 1099511628211
	goldenRatioMultiplier = 11400714819323198485

	// defaultMaxEntries is an advisory ceiling: crossing it logs a warning
	// but nothing is evicted or rejected. The cache only shrinks via Clear.
	defaultMaxEntries = 120_000
)

// fallbackColor is used in theme-palette mode when the chosen slot carries
// no color.
var fallbackColor = colorful.Color{R: 0xa6 / 255.0, G: 0xe3 / 255.0, B: 0xa1 / 255.0}

// ColorCache is a process-wide mapping from identifier hash to display
// color. It is shared by reference across all buffers and is safe for
// concurrent use: reads are lock-free and inserts are idempotent (the same
// identifier always computes the same color, so a racing double-compute is
// harmless).
type ColorCache struct {
	colors sync.Map // uint64 -> colorful.Color
	mode   Mode

	size       atomic.Int64
	maxEntries int64
}

// NewColorCache creates an empty cache for the given mode.
func NewColorCache(mode Mode) *ColorCache {
	return &ColorCache{mode: mode, maxEntries: defaultMaxEntries}
}

// Mode returns the cache's generation mode.
func (c *ColorCache) Mode() Mode {
	return c.mode
}

// Len returns the current number of cached colors.
func (c *ColorCache) Len() int {
	return int(c.size.Load())
}

// GetOrInsert returns the stable color for an identifier, computing and
// caching it on first sight.
func (c *ColorCache) GetOrInsert(identifier string, t *theme.SyntaxTheme) theme.Style {
	return c.GetOrInsertByHash(HashIdentifier(identifier), t)
}

// GetOrInsertByHash is GetOrInsert for a pre-hashed identifier.
func (c *ColorCache) GetOrInsertByHash(hash uint64, t *theme.SyntaxTheme) theme.Style {
	if cached, ok := c.colors.Load(hash); ok {
		return theme.WithColor(cached.(colorful.Color))
	}

	if c.size.Load() >= c.maxEntries {
		log.Warn().
			Int64("max_entries", c.maxEntries).
			Msg("rainbow color cache limit reached")
	}

	style := c.generate(hash, t)
	if style.Color != nil {
		if _, loaded := c.colors.LoadOrStore(hash, *style.Color); !loaded {
			c.size.Add(1)
		}
	}
	return style
}

// Clear wipes all entries. Used when the theme or mode changes, since every
// cached color would be stale.
func (c *ColorCache) Clear() {
	c.colors.Clear()
	c.size.Store(0)
}

func (c *ColorCache) generate(hash uint64, t *theme.SyntaxTheme) theme.Style {
	switch c.mode {
	case DynamicHSL:
		return theme.WithColor(colorful.Hsl(hashToHue(hash)*360.0, 0.70, 0.65))
	default:
		size := t.RainbowPaletteSize()
		if size == 0 {
			return theme.WithColor(fallbackColor)
		}
		slot, ok := t.RainbowColor(colorIndex(hash, size))
		if !ok || !slot.HasColor() {
			return theme.WithColor(fallbackColor)
		}
		return slot
	}
}

// HashIdentifier is a 64-bit FNV-1a over the identifier's bytes. It is
// order-sensitive and pure: the same text always hashes the same.
func HashIdentifier(s string) uint64 {
	var hash uint64 = fnvOffset
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime
	}
	return hash
}

// colorIndex spreads the hash with a golden-ratio multiply before reducing
// modulo the palette size, so sequential identifiers do not cluster.
func colorIndex(hash uint64, paletteSize int) int {
	distributed := hash * goldenRatioMultiplier
	return int(distributed % uint64(paletteSize))
}

// hashToHue normalizes the spread hash into [0, 1).
func hashToHue(hash uint64) float64 {
	distributed := hash * goldenRatioMultiplier
	return float64(distributed) / float64(^uint64(0))
}
