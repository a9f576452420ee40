package refresh

import (
	"github.com/walteh/semhl/pkg/lsp"
	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/tokencache"
)

// Reason describes why a semantic token refresh was triggered. It is a
// closed set; construct values with the functions below.
type Reason struct {
	kind   reasonKind
	buffer lsp.BufferID
	server protocol.ServerID
}

type reasonKind int

const (
	reasonNewRowsShown reasonKind = iota
	reasonBufferEdited
	reasonRefreshRequested
	reasonSettingsChanged
)

// NewRowsShown is used when scrolling or a new excerpt made rows visible.
// Cached tokens stay valid; only new ranges need fetching.
func NewRowsShown() Reason {
	return Reason{kind: reasonNewRowsShown}
}

// BufferEdited is used when a buffer changed. All visible buffers sharing
// the edited buffer's language are refreshed, not just the edited one.
func BufferEdited(buffer lsp.BufferID) Reason {
	return Reason{kind: reasonBufferEdited, buffer: buffer}
}

// RefreshRequested is used when a language server sent
// workspace/semanticTokens/refresh.
func RefreshRequested(server protocol.ServerID) Reason {
	return Reason{kind: reasonRefreshRequested, server: server}
}

// SettingsChanged is used when editor settings affecting highlighting
// changed.
func SettingsChanged() Reason {
	return Reason{kind: reasonSettingsChanged}
}

// strategy maps the trigger to the cache invalidation policy.
func (r Reason) strategy() tokencache.InvalidationStrategy {
	switch r.kind {
	case reasonRefreshRequested:
		return tokencache.RefreshRequested(r.server)
	case reasonBufferEdited, reasonSettingsChanged:
		return tokencache.BufferEdited()
	default:
		return tokencache.NoInvalidation()
	}
}

// bypassesDebounce reports whether the trigger should fetch immediately.
func (r Reason) bypassesDebounce() bool {
	return r.kind == reasonSettingsChanged || r.kind == reasonRefreshRequested
}

// ignorePreviousFetches reports whether an already running fetch for a
// buffer should be superseded even when the strategy does not invalidate.
// A scroll trigger carries the newly visible ranges, so letting it coalesce
// into a fetch for the old ranges would lose them; it replaces instead.
func (r Reason) ignorePreviousFetches() bool {
	return r.kind != reasonBufferEdited
}

func (r Reason) String() string {
	switch r.kind {
	case reasonBufferEdited:
		return "buffer-edited"
	case reasonRefreshRequested:
		return "refresh-requested"
	case reasonSettingsChanged:
		return "settings-changed"
	default:
		return "new-rows-shown"
	}
}
