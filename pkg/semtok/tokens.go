package semtok

import (
	"github.com/walteh/semhl/pkg/lsp/protocol"
)

// tupleLen is the number of flat array elements per token.
const tupleLen = 5

// Tokens holds all the semantic tokens for a buffer in the LSP wire format.
// The zero value is an empty token set.
type Tokens struct {
	data []uint32
}

// Token is a single semantic token with absolute positions. Line and Start
// are in UTF-16 units, per the LSP wire contract.
type Token struct {
	Line      uint32
	Start     uint32
	Length    uint32
	Type      uint32
	Modifiers uint32
}

// FromFull wraps a full semanticTokens response payload. A payload whose
// length is not a multiple of five is a server bug; it is truncated to the
// largest valid prefix rather than rejected.
func FromFull(data []uint32) *Tokens {
	if rem := len(data) % tupleLen; rem != 0 {
		data = data[:len(data)-rem]
	}
	return &Tokens{data: data}
}

// Data returns the flat delta-encoded array.
func (t *Tokens) Data() []uint32 {
	return t.data
}

// Len returns the number of tokens.
func (t *Tokens) Len() int {
	return len(t.data) / tupleLen
}

// Apply splices the edits of a semanticTokens/full/delta response into the
// flat array. Edit offsets are in array elements, not tokens. Monotonicity of
// the result is the server's responsibility and is not re-validated here.
func (t *Tokens) Apply(edits []protocol.SemanticTokensEdit) {
	for _, edit := range edits {
		start := int(edit.Start)
		end := start + int(edit.DeleteCount)
		if start > len(t.data) {
			start = len(t.data)
		}
		if end > len(t.data) {
			end = len(t.data)
		}

		spliced := make([]uint32, 0, len(t.data)-(end-start)+len(edit.Data))
		spliced = append(spliced, t.data[:start]...)
		spliced = append(spliced, edit.Data...)
		spliced = append(spliced, t.data[end:]...)
		t.data = spliced
	}
}

// Iter returns a restartable decoder over the tokens, yielding absolute
// positions in wire order.
func (t *Tokens) Iter() *Iter {
	return &Iter{data: t.data}
}

// Decode materializes every token with absolute positions.
func (t *Tokens) Decode() []Token {
	decoded := make([]Token, 0, t.Len())
	for it := t.Iter(); ; {
		token, ok := it.Next()
		if !ok {
			break
		}
		decoded = append(decoded, token)
	}
	return decoded
}

// Iter decodes the flat array one token at a time, carrying the running
// (line, start) accumulator. It is only reset by creating a new Iter.
type Iter struct {
	data    []uint32
	started bool
	line    uint32
	start   uint32
}

// Next returns the next token, or false when the stream is exhausted.
func (it *Iter) Next() (Token, bool) {
	if len(it.data) < tupleLen {
		return Token{}, false
	}
	deltaLine, deltaStart := it.data[0], it.data[1]
	token := Token{
		Length:    it.data[2],
		Type:      it.data[3],
		Modifiers: it.data[4],
	}
	it.data = it.data[tupleLen:]

	if !it.started {
		// The first tuple's deltas are absolute values.
		it.started = true
		it.line = deltaLine
		it.start = deltaStart
	} else if deltaLine == 0 {
		it.start += deltaStart
	} else {
		it.line += deltaLine
		it.start = deltaStart
	}

	token.Line = it.line
	token.Start = it.start
	return token, true
}

// Encode converts absolute-position tokens back into the flat delta
// encoding. The input must be sorted by (line, start).
func Encode(tokens []Token) []uint32 {
	data := make([]uint32, 0, len(tokens)*tupleLen)
	var prevLine, prevStart uint32
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		deltaStart := token.Start
		if deltaLine == 0 {
			deltaStart = token.Start - prevStart
		}
		data = append(data, deltaLine, deltaStart, token.Length, token.Type, token.Modifiers)
		prevLine = token.Line
		prevStart = token.Start
	}
	return data
}
