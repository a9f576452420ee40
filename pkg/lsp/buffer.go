package lsp

import (
	"context"

	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/position"
)

// BufferID identifies an open buffer.
type BufferID uint64

// Buffer is the store's view of an open buffer: its identity, language, and
// current text snapshot. The snapshot pointer changes whenever the buffer's
// content changes; the store detects that and resets the buffer's chunk
// partition.
type Buffer struct {
	ID       BufferID
	Language string
	Snapshot *position.Snapshot

	// Version increments with every snapshot change. Consumers use it to
	// tell stale token views from current ones.
	Version uint64
}

// TokenClient is the request capability toward one language server
// instance. Implementations own the transport; the store only sees
// semantic-token payloads.
type TokenClient interface {
	ServerID() protocol.ServerID

	// SemanticTokensRange fetches tokens for a byte range of the buffer.
	SemanticTokensRange(ctx context.Context, buffer *Buffer, rng position.Range) (*protocol.SemanticTokens, error)

	// SemanticTokensFullDelta fetches tokens relative to a previous result
	// id. A server that answers with a full token set instead of edits is
	// represented as a single edit replacing the whole stream. Servers
	// without delta support return SupportsDelta false and this is never
	// called.
	SemanticTokensFullDelta(ctx context.Context, buffer *Buffer, previousResultID string) (*protocol.SemanticTokensDelta, error)

	SupportsDelta() bool
}
