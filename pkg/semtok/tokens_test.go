package semtok_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/semtok"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		data     []uint32
		expected []semtok.Token
	}{
		{
			name:     "test_empty_stream",
			data:     nil,
			expected: []semtok.Token{},
		},
		{
			name: "test_first_tuple_is_absolute",
			data: []uint32{5, 10, 3, 1, 0},
			expected: []semtok.Token{
				{Line: 5, Start: 10, Length: 3, Type: 1, Modifiers: 0},
			},
		},
		{
			name: "test_same_line_start_is_additive",
			data: []uint32{
				5, 0, 3, 1, 0,
				0, 5, 4, 2, 0,
				0, 5, 2, 1, 0,
			},
			expected: []semtok.Token{
				{Line: 5, Start: 0, Length: 3, Type: 1},
				{Line: 5, Start: 5, Length: 4, Type: 2},
				{Line: 5, Start: 10, Length: 2, Type: 1},
			},
		},
		{
			name: "test_new_line_start_is_absolute",
			data: []uint32{
				0, 5, 3, 1, 0,
				2, 3, 5, 1, 0,
				3, 0, 2, 1, 0,
			},
			expected: []semtok.Token{
				{Line: 0, Start: 5, Length: 3, Type: 1},
				{Line: 2, Start: 3, Length: 5, Type: 1},
				{Line: 5, Start: 0, Length: 2, Type: 1},
			},
		},
		{
			name: "test_modifier_bits_preserved",
			data: []uint32{
				0, 0, 3, 1, 0,
				0, 5, 4, 2, 0,
				1, 0, 5, 1, 1,
			},
			expected: []semtok.Token{
				{Line: 0, Start: 0, Length: 3, Type: 1},
				{Line: 0, Start: 5, Length: 4, Type: 2},
				{Line: 1, Start: 0, Length: 5, Type: 1, Modifiers: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := semtok.FromFull(tt.data)
			assert.Equal(t, tt.expected, tokens.Decode())
		})
	}
}

func TestDecodeTruncatesMalformedData(t *testing.T) {
	// 7 elements: one valid tuple plus 2 stray values.
	tokens := semtok.FromFull([]uint32{0, 5, 3, 1, 0, 9, 9})

	require.Equal(t, 1, tokens.Len())
	assert.Equal(t, []semtok.Token{
		{Line: 0, Start: 5, Length: 3, Type: 1},
	}, tokens.Decode())
}

func TestIterIsRestartable(t *testing.T) {
	tokens := semtok.FromFull([]uint32{
		0, 5, 3, 1, 0,
		1, 2, 4, 2, 0,
	})

	first := tokens.Decode()
	second := tokens.Decode()
	assert.Equal(t, first, second)

	// A fresh iterator must not inherit the accumulator of a previous one.
	it := tokens.Iter()
	token, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, uint32(0), token.Line)
	assert.Equal(t, uint32(5), token.Start)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		data     []uint32
		edits    []protocol.SemanticTokensEdit
		expected []uint32
	}{
		{
			name: "test_replace_one_tuple",
			data: []uint32{
				0, 5, 3, 1, 0,
				1, 2, 4, 2, 0,
			},
			edits: []protocol.SemanticTokensEdit{
				{Start: 5, DeleteCount: 5, Data: []uint32{2, 0, 7, 3, 1}},
			},
			expected: []uint32{
				0, 5, 3, 1, 0,
				2, 0, 7, 3, 1,
			},
		},
		{
			name: "test_insert_without_delete",
			data: []uint32{0, 5, 3, 1, 0},
			edits: []protocol.SemanticTokensEdit{
				{Start: 0, DeleteCount: 0, Data: []uint32{0, 0, 2, 2, 0}},
			},
			expected: []uint32{
				0, 0, 2, 2, 0,
				0, 5, 3, 1, 0,
			},
		},
		{
			name: "test_delete_without_insert",
			data: []uint32{
				0, 5, 3, 1, 0,
				1, 2, 4, 2, 0,
			},
			edits: []protocol.SemanticTokensEdit{
				{Start: 0, DeleteCount: 5},
			},
			expected: []uint32{1, 2, 4, 2, 0},
		},
		{
			name: "test_sequential_edits_see_prior_splices",
			data: []uint32{0, 5, 3, 1, 0},
			edits: []protocol.SemanticTokensEdit{
				{Start: 0, DeleteCount: 0, Data: []uint32{0, 0, 2, 2, 0}},
				{Start: 10, DeleteCount: 0, Data: []uint32{1, 0, 1, 1, 0}},
			},
			expected: []uint32{
				0, 0, 2, 2, 0,
				0, 5, 3, 1, 0,
				1, 0, 1, 1, 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := semtok.FromFull(tt.data)
			tokens.Apply(tt.edits)
			assert.Equal(t, tt.expected, tokens.Data())
		})
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	original := []semtok.Token{
		{Line: 0, Start: 5, Length: 3, Type: 1},
		{Line: 0, Start: 10, Length: 4, Type: 2, Modifiers: 1},
		{Line: 2, Start: 3, Length: 5, Type: 1},
		{Line: 2, Start: 15, Length: 3, Type: 3, Modifiers: 2},
		{Line: 5, Start: 0, Length: 2, Type: 1},
	}

	encoded := semtok.Encode(original)
	decoded := semtok.FromFull(encoded).Decode()
	assert.Equal(t, original, decoded)
}

func TestEncodeDecodeRoundtripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 200).Draw(t, "count")

		// Generate tokens with non-decreasing (line, start) order.
		tokens := make([]semtok.Token, 0, count)
		var line, start uint32
		for i := 0; i < count; i++ {
			deltaLine := rapid.Uint32Range(0, 3).Draw(t, "deltaLine")
			if deltaLine > 0 {
				line += deltaLine
				start = rapid.Uint32Range(0, 100).Draw(t, "newStart")
			} else {
				start += rapid.Uint32Range(0, 50).Draw(t, "deltaStart")
			}
			tokens = append(tokens, semtok.Token{
				Line:      line,
				Start:     start,
				Length:    rapid.Uint32Range(1, 30).Draw(t, "length"),
				Type:      rapid.Uint32Range(0, 20).Draw(t, "type"),
				Modifiers: rapid.Uint32Range(0, 255).Draw(t, "modifiers"),
			})
		}

		decoded := semtok.FromFull(semtok.Encode(tokens)).Decode()
		if len(tokens) == 0 {
			assert.Empty(t, decoded)
			return
		}
		assert.Equal(t, tokens, decoded)
	})
}
