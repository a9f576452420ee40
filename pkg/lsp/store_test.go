package lsp_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/semhl/pkg/lsp"
	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/semtok"
	"github.com/walteh/semhl/pkg/tokencache"
)

// fakeClient serves canned tokens per requested range and records calls.
type fakeClient struct {
	id            protocol.ServerID
	supportsDelta bool

	mu         sync.Mutex
	rangeCalls []position.Range
	rangeFn    func(rng position.Range) (*protocol.SemanticTokens, error)
	deltaCalls []string
	deltaFn    func(previousResultID string) (*protocol.SemanticTokensDelta, error)
}

func (c *fakeClient) ServerID() protocol.ServerID { return c.id }
func (c *fakeClient) SupportsDelta() bool         { return c.supportsDelta }

func (c *fakeClient) SemanticTokensRange(_ context.Context, _ *lsp.Buffer, rng position.Range) (*protocol.SemanticTokens, error) {
	c.mu.Lock()
	c.rangeCalls = append(c.rangeCalls, rng)
	c.mu.Unlock()
	if c.rangeFn != nil {
		return c.rangeFn(rng)
	}
	return &protocol.SemanticTokens{}, nil
}

func (c *fakeClient) SemanticTokensFullDelta(_ context.Context, _ *lsp.Buffer, previousResultID string) (*protocol.SemanticTokensDelta, error) {
	c.mu.Lock()
	c.deltaCalls = append(c.deltaCalls, previousResultID)
	c.mu.Unlock()
	if c.deltaFn != nil {
		return c.deltaFn(previousResultID)
	}
	return &protocol.SemanticTokensDelta{}, nil
}

func (c *fakeClient) rangeCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rangeCalls)
}

// testBuffer has 100 rows of "x\n", so row r starts at byte 2*r and the
// default chunk size yields two chunks.
func testBuffer(id lsp.BufferID) *lsp.Buffer {
	return &lsp.Buffer{
		ID:       id,
		Language: "rust",
		Snapshot: position.NewSnapshot(strings.Repeat("x\n", 99) + "x"),
		Version:  1,
	}
}

func fullRange(buffer *lsp.Buffer) []position.Range {
	return []position.Range{{Start: 0, End: buffer.Snapshot.Len()}}
}

func TestRequestTokensFetchesApplicableChunks(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		id: protocol.NewServerID(),
		rangeFn: func(rng position.Range) (*protocol.SemanticTokens, error) {
			line := uint32(rng.Start / 2)
			return &protocol.SemanticTokens{
				ResultID: "r1",
				Data:     semtok.Encode([]semtok.Token{{Line: line, Start: 0, Length: 1, Type: 1}}),
			}, nil
		},
	}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	// Only the first chunk's rows are visible.
	err := store.RequestTokens(ctx, buffer, []position.Range{{Start: 0, End: 20}}, tokencache.NoInvalidation())
	require.NoError(t, err)
	require.Equal(t, 1, client.rangeCallCount())
	assert.Equal(t, position.Range{Start: 0, End: 100}, client.rangeCalls[0])

	cache, ok := store.Cache(1)
	require.True(t, ok)
	_, ok = cache.CachedTokensFor(0, client.id)
	assert.True(t, ok)
	_, ok = cache.CachedTokensFor(1, client.id)
	assert.False(t, ok)

	// A second non-invalidating request for the same rows is a cache hit.
	err = store.RequestTokens(ctx, buffer, []position.Range{{Start: 0, End: 20}}, tokencache.NoInvalidation())
	require.NoError(t, err)
	assert.Equal(t, 1, client.rangeCallCount())

	// Scrolling to the second chunk fetches only the missing chunk.
	err = store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation())
	require.NoError(t, err)
	assert.Equal(t, 2, client.rangeCallCount())
}

func TestRequestTokensWithoutServersIsNoop(t *testing.T) {
	store := lsp.NewStore()
	buffer := testBuffer(1)

	err := store.RequestTokens(context.Background(), buffer, fullRange(buffer), tokencache.NoInvalidation())
	require.NoError(t, err)

	_, ok := store.Cache(1)
	assert.False(t, ok)
}

func TestRequestTokensPartialFailure(t *testing.T) {
	client := &fakeClient{
		id: protocol.NewServerID(),
		rangeFn: func(rng position.Range) (*protocol.SemanticTokens, error) {
			if rng.Start >= 100 {
				return nil, errors.New("server exploded")
			}
			return &protocol.SemanticTokens{Data: []uint32{0, 0, 1, 1, 0}}, nil
		},
	}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	err := store.RequestTokens(context.Background(), buffer, fullRange(buffer), tokencache.NoInvalidation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")

	// The chunk that succeeded stays cached; only the failed one is retried.
	cache, ok := store.Cache(1)
	require.True(t, ok)
	_, ok = cache.CachedTokensFor(0, client.id)
	assert.True(t, ok)
	_, ok = cache.CachedTokensFor(1, client.id)
	assert.False(t, ok)
}

func TestRefreshRequestedInvalidatesOnlyThatServer(t *testing.T) {
	ctx := context.Background()
	clientA := &fakeClient{id: protocol.ServerID("aaaa"), rangeFn: staticTokens("a1")}
	clientB := &fakeClient{id: protocol.ServerID("bbbb"), rangeFn: staticTokens("b1")}

	store := lsp.NewStore()
	store.RegisterServer(clientA, "rust")
	store.RegisterServer(clientB, "rust")
	buffer := testBuffer(1)

	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation()))
	require.Equal(t, 2, clientA.rangeCallCount())
	require.Equal(t, 2, clientB.rangeCallCount())

	// Server A resets its tokens: only A's chunks are refetched.
	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.RefreshRequested(clientA.id)))
	assert.Equal(t, 4, clientA.rangeCallCount())
	assert.Equal(t, 2, clientB.rangeCallCount())
}

func TestBufferEditedUsesDelta(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		id:            protocol.NewServerID(),
		supportsDelta: true,
		rangeFn: func(rng position.Range) (*protocol.SemanticTokens, error) {
			line := uint32(rng.Start / 2)
			return &protocol.SemanticTokens{
				ResultID: "full-1",
				Data:     semtok.Encode([]semtok.Token{{Line: line, Start: 0, Length: 1, Type: 1}}),
			}, nil
		},
		deltaFn: func(previousResultID string) (*protocol.SemanticTokensDelta, error) {
			// Replace the first tuple's length: 1 -> 3.
			return &protocol.SemanticTokensDelta{
				ResultID: "delta-2",
				Edits: []protocol.SemanticTokensEdit{
					{Start: 2, DeleteCount: 1, Data: []uint32{3}},
				},
			}, nil
		},
	}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	// Populate every chunk so the delta has a full document to apply to.
	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation()))
	require.Equal(t, 2, client.rangeCallCount())

	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.BufferEdited()))
	require.Equal(t, []string{"full-1"}, client.deltaCalls)
	assert.Equal(t, 2, client.rangeCallCount(), "delta should avoid chunk refetches")

	merged, ok := store.MergedTokens(1, client.id)
	require.True(t, ok)
	decoded := merged.Decode()
	require.Len(t, decoded, 2)
	assert.Equal(t, uint32(3), decoded[0].Length)

	cache, _ := store.Cache(1)
	id, ok := cache.ResultID(client.id)
	require.True(t, ok)
	assert.Equal(t, "delta-2", id)
}

func TestBufferEditedWithoutDeltaRefetches(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{id: protocol.NewServerID(), rangeFn: staticTokens("r")}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation()))
	require.Equal(t, 2, client.rangeCallCount())

	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.BufferEdited()))
	assert.Empty(t, client.deltaCalls)
	assert.Equal(t, 4, client.rangeCallCount(), "edit must drop and refetch every visible chunk")
}

func TestRemoveServerPurgesCaches(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{id: protocol.NewServerID(), rangeFn: staticTokens("r")}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation()))

	store.RemoveServer(client.id)

	cache, ok := store.Cache(1)
	require.True(t, ok)
	_, ok = cache.CachedTokensFor(0, client.id)
	assert.False(t, ok)

	_, ok = store.MergedTokens(1, client.id)
	assert.False(t, ok)

	// The server is unregistered: nothing is fetched anymore.
	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation()))
	assert.Equal(t, 2, client.rangeCallCount())
}

func TestSnapshotChangeResetsCache(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{id: protocol.NewServerID(), rangeFn: staticTokens("r")}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	require.NoError(t, store.RequestTokens(ctx, buffer, []position.Range{{Start: 0, End: 20}}, tokencache.NoInvalidation()))
	require.Equal(t, 1, client.rangeCallCount())

	// New snapshot: the partition is recomputed and the cache dropped, so
	// even a non-invalidating request refetches.
	buffer.Snapshot = position.NewSnapshot(strings.Repeat("y\n", 149) + "y")
	buffer.Version = 2

	require.NoError(t, store.RequestTokens(ctx, buffer, []position.Range{{Start: 0, End: 20}}, tokencache.NoInvalidation()))
	assert.Equal(t, 2, client.rangeCallCount())

	cache, _ := store.Cache(1)
	assert.Len(t, cache.Chunks(), 3)
}

func TestMergedTokensOrdersAcrossChunks(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		id: protocol.NewServerID(),
		rangeFn: func(rng position.Range) (*protocol.SemanticTokens, error) {
			line := uint32(rng.Start / 2)
			return &protocol.SemanticTokens{
				Data: semtok.Encode([]semtok.Token{
					{Line: line, Start: 0, Length: 1, Type: 1},
					{Line: line + 5, Start: 2, Length: 1, Type: 2},
				}),
			}, nil
		},
	}

	store := lsp.NewStore()
	store.RegisterServer(client, "rust")
	buffer := testBuffer(1)

	require.NoError(t, store.RequestTokens(ctx, buffer, fullRange(buffer), tokencache.NoInvalidation()))

	merged, ok := store.MergedTokens(1, client.id)
	require.True(t, ok)
	decoded := merged.Decode()
	require.Len(t, decoded, 4)
	for i := 1; i < len(decoded); i++ {
		assert.True(t, decoded[i-1].Line < decoded[i].Line, "tokens must be in document order")
	}
}

func staticTokens(resultID string) func(position.Range) (*protocol.SemanticTokens, error) {
	return func(rng position.Range) (*protocol.SemanticTokens, error) {
		line := uint32(rng.Start / 2)
		return &protocol.SemanticTokens{
			ResultID: resultID,
			Data:     semtok.Encode([]semtok.Token{{Line: line, Start: 0, Length: 1, Type: 1}}),
		}, nil
	}
}
