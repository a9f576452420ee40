package highlight

import (
	"sort"

	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/rainbow"
	"github.com/walteh/semhl/pkg/semtok"
	"github.com/walteh/semhl/pkg/theme"
)

// MultibufferToken is a semantic token re-anchored to byte offsets in a
// buffer snapshot, with its style already resolved.
type MultibufferToken struct {
	Range position.Range
	Style theme.Style

	// Wire type and modifiers, kept for the debug syntax tree.
	Type      uint32
	Modifiers uint32
}

// BufferTokens is the render-ready token list for one buffer snapshot,
// sorted by range start for binary-search queries.
type BufferTokens struct {
	Tokens  []MultibufferToken
	Version uint64

	// HadRainbowCache records whether the list was generated with a rainbow
	// cache available, so a rainbow toggle can be detected as requiring
	// regeneration.
	HadRainbowCache bool
}

// NewBufferTokens converts raw wire tokens into styled, offset-anchored
// tokens for the given snapshot. colorCache and syntaxTheme may be nil;
// tokens the stylizer cannot resolve are dropped.
func NewBufferTokens(
	snapshot *position.Snapshot,
	version uint64,
	tokens *semtok.Tokens,
	legend *protocol.SemanticTokensLegend,
	colorCache *rainbow.ColorCache,
	syntaxTheme *theme.SyntaxTheme,
	cfg RainbowConfig,
) *BufferTokens {
	stylizer := NewStylizer(legend, cfg)

	converted := make([]MultibufferToken, 0, tokens.Len())
	for it := tokens.Iter(); ; {
		token, ok := it.Next()
		if !ok {
			break
		}

		point := snapshot.ClipPointUTF16(position.PointUTF16{Row: token.Line, Col: token.Start}, position.Left)
		start := snapshot.PointUTF16ToOffset(point)
		end := snapshot.AdvanceUTF16(start, token.Length)
		rng := position.Range{Start: start, End: end}

		style, ok := stylizer.Convert(syntaxTheme, token.Type, token.Modifiers, snapshot, rng, colorCache)
		if !ok {
			continue
		}

		converted = append(converted, MultibufferToken{
			Range:     rng,
			Style:     style,
			Type:      token.Type,
			Modifiers: token.Modifiers,
		})
	}

	// The wire order should already be sorted, but binary search depends on
	// it, so make sure.
	sort.SliceStable(converted, func(i, j int) bool {
		return converted[i].Range.Start < converted[j].Range.Start
	})

	return &BufferTokens{
		Tokens:          converted,
		Version:         version,
		HadRainbowCache: colorCache != nil,
	}
}

// TokensInRange returns the tokens whose range start falls in
// [rng.Start, rng.End), in document order.
func (b *BufferTokens) TokensInRange(rng position.Range) []MultibufferToken {
	start := sort.Search(len(b.Tokens), func(i int) bool {
		return b.Tokens[i].Range.Start >= rng.Start
	})
	end := sort.Search(len(b.Tokens), func(i int) bool {
		return b.Tokens[i].Range.Start >= rng.End
	})
	return b.Tokens[start:end]
}
