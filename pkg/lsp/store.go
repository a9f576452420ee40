package lsp

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/semtok"
	"github.com/walteh/semhl/pkg/tokencache"
)

// Store owns the chunked token caches for all open buffers and drives token
// requests against registered language servers. One buffer's failure never
// blocks another's: per-chunk errors are collected and reported together.
type Store struct {
	mu        sync.Mutex
	servers   map[protocol.ServerID]TokenClient
	languages map[protocol.ServerID]map[string]struct{}
	caches    map[BufferID]*tokencache.Cache
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		servers:   make(map[protocol.ServerID]TokenClient),
		languages: make(map[protocol.ServerID]map[string]struct{}),
		caches:    make(map[BufferID]*tokencache.Cache),
	}
}

// RegisterServer adds a language server instance serving the given
// languages.
func (s *Store) RegisterServer(client TokenClient, languages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := client.ServerID()
	s.servers[id] = client
	set := make(map[string]struct{}, len(languages))
	for _, language := range languages {
		set[language] = struct{}{}
	}
	s.languages[id] = set
}

// RemoveServer tears down a server instance: it is unregistered and every
// buffer cache drops its data and result id.
func (s *Store) RemoveServer(id protocol.ServerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.servers, id)
	delete(s.languages, id)
	for _, cache := range s.caches {
		cache.RemoveServerData(id)
	}
}

// DropBuffer forgets a closed buffer's cache.
func (s *Store) DropBuffer(id BufferID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, id)
}

// Cache returns the chunk cache for a buffer, if one exists yet.
func (s *Store) Cache(id BufferID) (*tokencache.Cache, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache, ok := s.caches[id]
	return cache, ok
}

func (s *Store) serversFor(language string) []TokenClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	var clients []TokenClient
	for id, client := range s.servers {
		if _, ok := s.languages[id][language]; ok {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ServerID() < clients[j].ServerID()
	})
	return clients
}

// cacheFor returns the buffer's cache, creating it on first use and
// resetting it when the snapshot changed. A snapshot change recomputes the
// chunk partition, which drops all cached chunk data.
func (s *Store) cacheFor(buffer *Buffer) *tokencache.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.caches[buffer.ID]
	if !ok {
		cache = tokencache.NewCache(buffer.Snapshot)
		s.caches[buffer.ID] = cache
	} else if cache.Snapshot() != buffer.Snapshot {
		cache.Reset(buffer.Snapshot)
	}
	return cache
}

// RequestTokens fetches semantic tokens for the buffer's visible ranges from
// every server registered for its language, applying the invalidation
// strategy to cached data first. Failures are aggregated per server and per
// chunk; a partial failure leaves the successfully fetched chunks cached.
func (s *Store) RequestTokens(
	ctx context.Context,
	buffer *Buffer,
	visible []position.Range,
	strategy tokencache.InvalidationStrategy,
) error {
	clients := s.serversFor(buffer.Language)
	if len(clients) == 0 {
		return nil
	}
	cache := s.cacheFor(buffer)

	var result *multierror.Error
	for _, client := range clients {
		if err := s.requestForServer(ctx, client, buffer, cache, visible, strategy); err != nil {
			result = multierror.Append(result, errors.Errorf("server %s: %w", client.ServerID(), err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Store) requestForServer(
	ctx context.Context,
	client TokenClient,
	buffer *Buffer,
	cache *tokencache.Cache,
	visible []position.Range,
	strategy tokencache.InvalidationStrategy,
) error {
	logger := zerolog.Ctx(ctx)
	server := client.ServerID()

	if refreshed, ok := strategy.RefreshedServer(); ok && refreshed == server {
		cache.RemoveServerData(server)
	}

	if strategy.ShouldInvalidate() {
		if _, isRefresh := strategy.RefreshedServer(); !isRefresh {
			// Buffer edit: a delta request against the recorded result id is
			// much cheaper than refetching every chunk. It needs the full
			// document cached, otherwise the edits have nothing to apply to.
			if s.applyDelta(ctx, client, buffer, cache) {
				return nil
			}
			cache.RemoveServerData(server)
		}
	}

	chunks := cache.ApplicableChunks(visible)
	logger.Debug().
		Uint64("buffer", uint64(buffer.ID)).
		Str("server", string(server)).
		Str("strategy", strategy.String()).
		Int("chunks", len(chunks)).
		Msg("fetching semantic token chunks")

	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)
	for _, chunk := range chunks {
		if _, ok := cache.CachedTokensFor(chunk.ID, server); ok {
			continue
		}

		wg.Add(1)
		go func(chunk tokencache.Chunk) {
			defer wg.Done()
			if err := s.fetchChunk(ctx, client, buffer, cache, chunk); err != nil {
				mu.Lock()
				result = multierror.Append(result, errors.Errorf("chunk %d (rows %d-%d): %w",
					chunk.ID, chunk.RowStart, chunk.RowEnd, err))
				mu.Unlock()
			}
		}(chunk)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

// fetchChunk requests one chunk's rows from the server and caches the
// response. Concurrent requests for the same chunk share a single in-flight
// call through the cache's fetch slot.
func (s *Store) fetchChunk(
	ctx context.Context,
	client TokenClient,
	buffer *Buffer,
	cache *tokencache.Cache,
	chunk tokencache.Chunk,
) error {
	server := client.ServerID()
	_, err := cache.Fetch(chunk.ID, server, func() (*protocol.SemanticTokens, error) {
		snapshot := cache.Snapshot()
		rng := position.Range{
			Start: snapshot.RowToOffset(chunk.RowStart),
			End:   snapshot.RowToOffset(chunk.RowEnd),
		}
		response, err := client.SemanticTokensRange(ctx, buffer, rng)
		if err != nil {
			return nil, errors.Errorf("requesting tokens: %w", err)
		}
		if rem := len(response.Data) % 5; rem != 0 {
			zerolog.Ctx(ctx).Warn().
				Str("server", string(server)).
				Int("len", len(response.Data)).
				Int("dropped", rem).
				Msg("semantic token data length is not a multiple of 5, truncating")
		}
		cache.InsertNewTokens(chunk.ID, server, semtok.FromFull(response.Data), response.ResultID)
		return response, nil
	})
	return err
}

// applyDelta attempts an incremental re-fetch. It reports success; any
// failure falls back to full chunk fetches.
func (s *Store) applyDelta(ctx context.Context, client TokenClient, buffer *Buffer, cache *tokencache.Cache) bool {
	logger := zerolog.Ctx(ctx)
	server := client.ServerID()

	if !client.SupportsDelta() {
		return false
	}
	resultID, ok := cache.ResultID(server)
	if !ok {
		return false
	}
	full, ok := s.rebuildFull(cache, server)
	if !ok {
		return false
	}

	delta, err := client.SemanticTokensFullDelta(ctx, buffer, resultID)
	if err != nil {
		logger.Warn().
			Err(err).
			Uint64("buffer", uint64(buffer.ID)).
			Str("server", string(server)).
			Msg("semantic token delta request failed, falling back to full fetch")
		return false
	}

	full.Apply(delta.Edits)
	s.redistribute(cache, server, full, delta.ResultID)
	return true
}

// rebuildFull reconstructs the server's whole-document stream from the chunk
// streams. Every chunk must be cached for the result to be complete.
func (s *Store) rebuildFull(cache *tokencache.Cache, server protocol.ServerID) (*semtok.Tokens, bool) {
	var decoded []semtok.Token
	for _, chunk := range cache.Chunks() {
		tokens, ok := cache.CachedTokensFor(chunk.ID, server)
		if !ok {
			return nil, false
		}
		decoded = append(decoded, tokens.Decode()...)
	}
	sortTokens(decoded)
	return semtok.FromFull(semtok.Encode(decoded)), true
}

// redistribute splits a whole-document stream back into per-chunk streams.
// Chunks with no tokens get an empty stream so they still count as cached.
func (s *Store) redistribute(cache *tokencache.Cache, server protocol.ServerID, full *semtok.Tokens, resultID string) {
	chunks := cache.Chunks()
	buckets := make([][]semtok.Token, len(chunks))

	for it := full.Iter(); ; {
		token, ok := it.Next()
		if !ok {
			break
		}
		for i, chunk := range chunks {
			if token.Line >= chunk.RowStart && token.Line < chunk.RowEnd {
				buckets[i] = append(buckets[i], token)
				break
			}
		}
	}

	for i, chunk := range chunks {
		cache.InsertNewTokens(chunk.ID, server, semtok.FromFull(semtok.Encode(buckets[i])), resultID)
	}
}

// MergedTokens merges every cached chunk of a server into one ordered
// stream, deduplicating tokens repeated across overlapping fetches. This is
// the stream the editor styles and renders.
func (s *Store) MergedTokens(id BufferID, server protocol.ServerID) (*semtok.Tokens, bool) {
	cache, ok := s.Cache(id)
	if !ok {
		return nil, false
	}

	var decoded []semtok.Token
	found := false
	for _, chunk := range cache.Chunks() {
		tokens, ok := cache.CachedTokensFor(chunk.ID, server)
		if !ok {
			continue
		}
		found = true
		decoded = append(decoded, tokens.Decode()...)
	}
	if !found {
		return nil, false
	}

	sortTokens(decoded)
	deduped := decoded[:0]
	for i, token := range decoded {
		if i > 0 {
			prev := deduped[len(deduped)-1]
			if prev.Line == token.Line && prev.Start == token.Start && prev.Length == token.Length {
				continue
			}
		}
		deduped = append(deduped, token)
	}
	return semtok.FromFull(semtok.Encode(deduped)), true
}

func sortTokens(tokens []semtok.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Line != tokens[j].Line {
			return tokens[i].Line < tokens[j].Line
		}
		return tokens[i].Start < tokens[j].Start
	})
}
