package position

import (
	"sort"
	"unicode/utf16"
	"unicode/utf8"
)

// Bias picks a direction when a position must be clipped to a valid boundary.
type Bias int

const (
	// Left clips toward the start of the buffer.
	Left Bias = iota
	// Right clips toward the end of the buffer.
	Right
)

// Range is a half-open [Start, End) byte range in a buffer.
type Range struct {
	Start int
	End   int
}

// PointUTF16 is a buffer position in rows and UTF-16 code units, the
// coordinate space of the LSP wire format.
type PointUTF16 struct {
	Row uint32
	Col uint32
}

// Snapshot is an immutable view of a buffer's text with precomputed line
// starts, providing the byte offset / UTF-16 point / row conversions the
// token engine needs. It stands in for the editor's rope.
type Snapshot struct {
	text string
	// Byte offset of the start of each line. lineStarts[0] == 0.
	lineStarts []int
}

// NewSnapshot indexes the given text. Lines are split on '\n'; a trailing
// newline yields a final empty line, matching editor row accounting.
func NewSnapshot(text string) *Snapshot {
	lineStarts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	return &Snapshot{text: text, lineStarts: lineStarts}
}

// Text returns the full buffer text.
func (s *Snapshot) Text() string {
	return s.text
}

// TextForRange returns the text spanned by [start, end) byte offsets,
// clipped to the buffer.
func (s *Snapshot) TextForRange(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s.text) {
		end = len(s.text)
	}
	if start >= end {
		return ""
	}
	return s.text[start:end]
}

// RowCount returns the number of rows in the buffer. An empty buffer has one
// row.
func (s *Snapshot) RowCount() uint32 {
	return uint32(len(s.lineStarts))
}

// Len returns the buffer length in bytes.
func (s *Snapshot) Len() int {
	return len(s.text)
}

// line returns the text of the given row, without the trailing newline.
func (s *Snapshot) line(row uint32) string {
	if row >= s.RowCount() {
		return ""
	}
	start := s.lineStarts[row]
	end := len(s.text)
	if int(row)+1 < len(s.lineStarts) {
		end = s.lineStarts[row+1] - 1
	}
	return s.text[start:end]
}

// OffsetToRow returns the row containing the given byte offset. Offsets past
// the end of the buffer map to the last row.
func (s *Snapshot) OffsetToRow(offset int) uint32 {
	if offset < 0 {
		return 0
	}
	row := sort.Search(len(s.lineStarts), func(i int) bool {
		return s.lineStarts[i] > offset
	})
	return uint32(row - 1)
}

// RowToOffset returns the byte offset of the start of the given row, clipped
// to the buffer extent.
func (s *Snapshot) RowToOffset(row uint32) int {
	if row >= s.RowCount() {
		return len(s.text)
	}
	return s.lineStarts[row]
}

// ClipPointUTF16 clamps a point to the nearest valid position. Rows past the
// end clip to the last row; columns clip to the line's UTF-16 extent. A
// column landing inside a surrogate pair moves to the pair's start with Left
// bias and past it with Right bias.
func (s *Snapshot) ClipPointUTF16(point PointUTF16, bias Bias) PointUTF16 {
	if point.Row >= s.RowCount() {
		row := s.RowCount() - 1
		return PointUTF16{Row: row, Col: s.lineLenUTF16(row)}
	}

	line := s.line(point.Row)
	var col uint32
	for _, r := range line {
		units := uint32(utf16.RuneLen(r))
		if col+units > point.Col {
			if col == point.Col || bias == Left {
				return PointUTF16{Row: point.Row, Col: col}
			}
			return PointUTF16{Row: point.Row, Col: col + units}
		}
		col += units
	}
	return PointUTF16{Row: point.Row, Col: col}
}

// PointUTF16ToOffset converts a (valid) UTF-16 point to a byte offset.
// Columns past the end of the line land at the end of the line.
func (s *Snapshot) PointUTF16ToOffset(point PointUTF16) int {
	if point.Row >= s.RowCount() {
		return len(s.text)
	}
	lineStart := s.lineStarts[point.Row]
	line := s.line(point.Row)

	var col uint32
	for i, r := range line {
		if col >= point.Col {
			return lineStart + i
		}
		col += uint32(utf16.RuneLen(r))
	}
	return lineStart + len(line)
}

// OffsetToPointUTF16 converts a byte offset to a UTF-16 point.
func (s *Snapshot) OffsetToPointUTF16(offset int) PointUTF16 {
	if offset > len(s.text) {
		offset = len(s.text)
	}
	row := s.OffsetToRow(offset)
	lineStart := s.lineStarts[row]
	prefix := s.text[lineStart:offset]

	var col uint32
	for _, r := range prefix {
		col += uint32(utf16.RuneLen(r))
	}
	return PointUTF16{Row: row, Col: col}
}

// AdvanceUTF16 walks forward from a byte offset by the given number of UTF-16
// code units and returns the resulting byte offset. Used to turn a token's
// UTF-16 length into a byte range.
func (s *Snapshot) AdvanceUTF16(offset int, units uint32) int {
	rest := s.text[offset:]
	for units > 0 && len(rest) > 0 {
		r, size := utf8.DecodeRuneInString(rest)
		u := uint32(utf16.RuneLen(r))
		if u > units {
			break
		}
		units -= u
		offset += size
		rest = rest[size:]
	}
	return offset
}

// lineLenUTF16 returns the UTF-16 length of the given row.
func (s *Snapshot) lineLenUTF16(row uint32) uint32 {
	var col uint32
	for _, r := range s.line(row) {
		col += uint32(utf16.RuneLen(r))
	}
	return col
}
