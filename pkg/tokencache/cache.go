package tokencache

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/semtok"
)

// DefaultChunkRows is the default number of rows covered by one chunk.
const DefaultChunkRows = 50

// Chunk is a fixed-size row partition of a buffer, the unit of token fetch
// and cache granularity. Rows span [RowStart, RowEnd); the last chunk of a
// buffer may be shorter than the configured size.
type Chunk struct {
	ID       int
	RowStart uint32
	RowEnd   uint32
}

// Cache holds fetched semantic tokens for one buffer, partitioned into row
// chunks. Each chunk caches decoded wire data per language server, and at
// most one fetch per chunk may be in flight at a time; concurrent requests
// for the same chunk attach to the existing fetch.
//
// A Cache is bound to the buffer snapshot it was partitioned from. When the
// buffer's row extent changes, Reset repartitions and drops everything:
// chunk ids are not stable across snapshots.
type Cache struct {
	mu        sync.Mutex
	snapshot  *position.Snapshot
	chunkRows uint32
	chunks    []Chunk
	entries   map[int]map[protocol.ServerID]*semtok.Tokens
	resultIDs map[protocol.ServerID]string

	fetches singleflight.Group
}

// NewCache partitions the snapshot's row extent into chunks of
// DefaultChunkRows rows.
func NewCache(snapshot *position.Snapshot) *Cache {
	return NewCacheWithChunkRows(snapshot, DefaultChunkRows)
}

// NewCacheWithChunkRows partitions with an explicit chunk size. chunkRows
// must be positive.
func NewCacheWithChunkRows(snapshot *position.Snapshot, chunkRows uint32) *Cache {
	c := &Cache{chunkRows: chunkRows}
	c.reset(snapshot)
	return c
}

// Reset repartitions the cache against a new snapshot and drops all cached
// tokens and result ids. Any previously returned chunks are invalid after
// this call.
func (c *Cache) Reset(snapshot *position.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset(snapshot)
}

func (c *Cache) reset(snapshot *position.Snapshot) {
	c.snapshot = snapshot
	rows := snapshot.RowCount()

	count := int((rows + c.chunkRows - 1) / c.chunkRows)
	chunks := make([]Chunk, 0, count)
	for id := 0; id < count; id++ {
		start := uint32(id) * c.chunkRows
		end := start + c.chunkRows
		if end > rows {
			end = rows
		}
		chunks = append(chunks, Chunk{ID: id, RowStart: start, RowEnd: end})
	}

	c.chunks = chunks
	c.entries = make(map[int]map[protocol.ServerID]*semtok.Tokens)
	c.resultIDs = make(map[protocol.ServerID]string)
}

// Snapshot returns the snapshot the current partition was computed from.
func (c *Cache) Snapshot() *position.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Chunks returns the current partition in row order.
func (c *Cache) Chunks() []Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks
}

// ApplicableChunks returns the chunks whose row span intersects any of the
// given byte ranges, in row order without duplicates. This is the fetch
// granularity: interest in a single row still costs a whole chunk, which
// bounds the number of concurrent requests for large buffers.
func (c *Cache) ApplicableChunks(ranges []position.Range) []Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()

	wanted := make(map[int]struct{})
	for _, r := range ranges {
		if r.End < r.Start {
			continue
		}
		rowStart := c.snapshot.OffsetToRow(r.Start)
		rowEnd := c.snapshot.OffsetToRow(maxOffset(r.Start, r.End-1))
		for _, chunk := range c.chunks {
			if chunk.RowStart <= rowEnd && rowStart < chunk.RowEnd {
				wanted[chunk.ID] = struct{}{}
			}
		}
	}

	applicable := make([]Chunk, 0, len(wanted))
	for _, chunk := range c.chunks {
		if _, ok := wanted[chunk.ID]; ok {
			applicable = append(applicable, chunk)
		}
	}
	return applicable
}

// CachedTokens returns the per-server token map for a chunk, or false when
// nothing is cached yet (which should trigger a fetch). The returned map
// must not be mutated.
func (c *Cache) CachedTokens(chunkID int) (map[protocol.ServerID]*semtok.Tokens, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[chunkID]
	return entry, ok
}

// CachedTokensFor returns one server's cached tokens for a chunk.
func (c *Cache) CachedTokensFor(chunkID int, server protocol.ServerID) (*semtok.Tokens, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens, ok := c.entries[chunkID][server]
	return tokens, ok
}

// Fetch runs do for the given chunk and server, guaranteeing at most one
// in-flight execution per (chunk, server): concurrent callers for the same
// chunk block on the existing call and share its result instead of issuing a
// duplicate request.
func (c *Cache) Fetch(chunkID int, server protocol.ServerID, do func() (*protocol.SemanticTokens, error)) (*protocol.SemanticTokens, error) {
	key := string(server) + "/" + strconv.Itoa(chunkID)
	v, err, _ := c.fetches.Do(key, func() (interface{}, error) {
		return do()
	})
	if err != nil {
		return nil, err
	}
	return v.(*protocol.SemanticTokens), nil
}

// InsertNewTokens stores a server's tokens for a chunk and records the
// server's result id for future delta requests.
func (c *Cache) InsertNewTokens(chunkID int, server protocol.ServerID, tokens *semtok.Tokens, resultID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[chunkID]
	if !ok {
		entry = make(map[protocol.ServerID]*semtok.Tokens)
		c.entries[chunkID] = entry
	}
	entry[server] = tokens

	if resultID != "" {
		c.resultIDs[server] = resultID
	}
}

// ResultID returns the server's last recorded result id, if any.
func (c *Cache) ResultID(server protocol.ServerID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.resultIDs[server]
	return id, ok
}

// RemoveServerData purges every chunk's entry for a server along with its
// result id. Used when a language server instance is shut down or restarted.
func (c *Cache) RemoveServerData(server protocol.ServerID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for chunkID, entry := range c.entries {
		delete(entry, server)
		if len(entry) == 0 {
			delete(c.entries, chunkID)
		}
	}
	delete(c.resultIDs, server)
}

// Clear drops all cached tokens and result ids while keeping the current
// partition. Used on full invalidation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]map[protocol.ServerID]*semtok.Tokens)
	c.resultIDs = make(map[protocol.ServerID]string)
}

func maxOffset(a, b int) int {
	if a > b {
		return a
	}
	return b
}
