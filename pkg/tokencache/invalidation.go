package tokencache

import "github.com/walteh/semhl/pkg/lsp/protocol"

// InvalidationStrategy is the policy applied to cached semantic tokens when
// new tokens are queried. It is a closed set; construct values with the
// functions below.
type InvalidationStrategy struct {
	kind     invalidationKind
	serverID protocol.ServerID
}

type invalidationKind int

const (
	invalidationNone invalidationKind = iota
	invalidationBufferEdited
	invalidationRefreshRequested
)

// RefreshRequested is used when a language server reset its tokens via the
// workspace/semanticTokens/refresh request. All cached entries for that
// server must be re-queried.
func RefreshRequested(serverID protocol.ServerID) InvalidationStrategy {
	return InvalidationStrategy{kind: invalidationRefreshRequested, serverID: serverID}
}

// BufferEdited is used when the buffer changed. Delta requests are attempted
// when the server supports them.
func BufferEdited() InvalidationStrategy {
	return InvalidationStrategy{kind: invalidationBufferEdited}
}

// NoInvalidation is used when a new file was opened or a buffer scrolled to a
// new position. Cached entries stay valid; only new visible ranges are
// queried.
func NoInvalidation() InvalidationStrategy {
	return InvalidationStrategy{kind: invalidationNone}
}

// ShouldInvalidate reports whether cached tokens must be discarded before
// fetching.
func (s InvalidationStrategy) ShouldInvalidate() bool {
	return s.kind == invalidationRefreshRequested || s.kind == invalidationBufferEdited
}

// RefreshedServer returns the server that requested the refresh, if this
// strategy came from one.
func (s InvalidationStrategy) RefreshedServer() (protocol.ServerID, bool) {
	return s.serverID, s.kind == invalidationRefreshRequested
}

func (s InvalidationStrategy) String() string {
	switch s.kind {
	case invalidationRefreshRequested:
		return "refresh-requested(" + string(s.serverID) + ")"
	case invalidationBufferEdited:
		return "buffer-edited"
	default:
		return "none"
	}
}
