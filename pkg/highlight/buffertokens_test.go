package highlight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/semhl/pkg/highlight"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/rainbow"
	"github.com/walteh/semhl/pkg/semtok"
)

func TestNewBufferTokens(t *testing.T) {
	// Rows:      0: "let count = 1"
	//            1: "count += 1"
	snapshot := position.NewSnapshot("let count = 1\ncount += 1")
	syntaxTheme := themeWith(t, "keyword", "variable", "number")

	tokens := semtok.FromFull(semtok.Encode([]semtok.Token{
		{Line: 0, Start: 0, Length: 3, Type: 13},  // "let" keyword
		{Line: 0, Start: 4, Length: 5, Type: 8},   // "count" variable
		{Line: 0, Start: 12, Length: 1, Type: 99}, // unknown type, dropped
		{Line: 1, Start: 0, Length: 5, Type: 8},   // "count" variable
	}))

	view := highlight.NewBufferTokens(snapshot, 7, tokens, testLegend(), nil, syntaxTheme, highlight.RainbowConfig{})

	require.Len(t, view.Tokens, 3)
	assert.Equal(t, uint64(7), view.Version)
	assert.False(t, view.HadRainbowCache)

	assert.Equal(t, position.Range{Start: 0, End: 3}, view.Tokens[0].Range)
	assert.Equal(t, position.Range{Start: 4, End: 9}, view.Tokens[1].Range)
	assert.Equal(t, position.Range{Start: 14, End: 19}, view.Tokens[2].Range)

	keyword, _ := syntaxTheme.Get("keyword")
	assert.Equal(t, keyword.Color.Hex(), view.Tokens[0].Style.Color.Hex())

	// Wire type and modifiers survive for the debug tree.
	assert.Equal(t, uint32(8), view.Tokens[1].Type)
}

func TestNewBufferTokensRecordsRainbowCache(t *testing.T) {
	snapshot := position.NewSnapshot("x")
	tokens := semtok.FromFull(nil)
	cache := rainbow.NewColorCache(rainbow.DynamicHSL)

	with := highlight.NewBufferTokens(snapshot, 1, tokens, testLegend(), cache, nil, highlight.RainbowConfig{})
	without := highlight.NewBufferTokens(snapshot, 1, tokens, testLegend(), nil, nil, highlight.RainbowConfig{})

	assert.True(t, with.HadRainbowCache)
	assert.False(t, without.HadRainbowCache)
}

func TestNewBufferTokensMultibytePositions(t *testing.T) {
	// The token after the surrogate pair must land on the right bytes.
	snapshot := position.NewSnapshot("𝄞 ab")
	syntaxTheme := themeWith(t, "variable")

	tokens := semtok.FromFull(semtok.Encode([]semtok.Token{
		{Line: 0, Start: 3, Length: 2, Type: 8}, // "ab", after 2-unit 𝄞 and a space
	}))

	view := highlight.NewBufferTokens(snapshot, 1, tokens, testLegend(), nil, syntaxTheme, highlight.RainbowConfig{})
	require.Len(t, view.Tokens, 1)
	assert.Equal(t, "ab", snapshot.TextForRange(view.Tokens[0].Range.Start, view.Tokens[0].Range.End))
}

func TestTokensInRange(t *testing.T) {
	view := &highlight.BufferTokens{
		Tokens: []highlight.MultibufferToken{
			{Range: position.Range{Start: 0, End: 3}},
			{Range: position.Range{Start: 5, End: 9}},
			{Range: position.Range{Start: 9, End: 12}},
			{Range: position.Range{Start: 20, End: 24}},
		},
	}

	tests := []struct {
		name     string
		rng      position.Range
		expected []int // indexes into view.Tokens
	}{
		{name: "test_full_range", rng: position.Range{Start: 0, End: 100}, expected: []int{0, 1, 2, 3}},
		{name: "test_inner_range", rng: position.Range{Start: 5, End: 10}, expected: []int{1, 2}},
		{name: "test_start_is_inclusive", rng: position.Range{Start: 9, End: 21}, expected: []int{2, 3}},
		{name: "test_end_is_exclusive", rng: position.Range{Start: 0, End: 9}, expected: []int{0, 1}},
		{name: "test_token_overlapping_start_excluded", rng: position.Range{Start: 1, End: 6}, expected: []int{1}},
		{name: "test_empty_window", rng: position.Range{Start: 13, End: 20}, expected: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := view.TokensInRange(tt.rng)
			require.Len(t, got, len(tt.expected))
			for i, idx := range tt.expected {
				assert.Equal(t, view.Tokens[idx].Range, got[i].Range)
			}
		})
	}
}
