package refresh

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/walteh/semhl/pkg/lsp"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/tokencache"
)

const (
	// DefaultInvalidateDebounce delays fetches after invalidating edits.
	DefaultInvalidateDebounce = 50 * time.Millisecond
	// DefaultAppendDebounce delays fetches after non-invalidating scrolls.
	DefaultAppendDebounce = 100 * time.Millisecond

	// maxFailures is the consecutive-failure count at which a buffer stops
	// receiving automatic refreshes. Only a success clears it.
	maxFailures = 3
)

// ExcerptID identifies one visible document portion.
type ExcerptID uint64

// VisibleExcerpt is one visible portion of a buffer, as reported by the view
// layer.
type VisibleExcerpt struct {
	Buffer *lsp.Buffer
	Range  position.Range
}

// ViewProvider is the query toward the view layer for what is currently on
// screen. It is re-queried on every trigger, even cheap ones, because new
// buffers may have scrolled into view. The returned map belongs to the
// caller.
type ViewProvider interface {
	VisibleExcerpts() map[ExcerptID]VisibleExcerpt
}

// TokenFetcher requests tokens for a buffer's visible ranges. Implemented by
// *lsp.Store.
type TokenFetcher interface {
	RequestTokens(ctx context.Context, buffer *lsp.Buffer, visible []position.Range, strategy tokencache.InvalidationStrategy) error
}

// task is one buffer's active fetch. Cancelling the context stops the fetch
// at its next suspension point (the debounce wait or the server call).
type task struct {
	cancel     context.CancelFunc
	generation uint64
}

// Orchestrator coordinates semantic token refreshes across all visible
// buffers: debouncing, deduplication, cancellation of superseded fetches,
// and suppression of repeatedly failing buffers.
//
// Triggers arrive synchronously from the owning editor state via Refresh;
// each spawned fetch runs on its own goroutine and is cancelled by being
// superseded or by Close.
type Orchestrator struct {
	ctx     context.Context
	cancel  context.CancelFunc
	view    ViewProvider
	fetcher TokenFetcher

	mu            sync.Mutex
	registered    map[lsp.BufferID]*lsp.Buffer
	failureCounts map[lsp.BufferID]int
	tasks         map[lsp.BufferID]*task
	generation    uint64
	wg            sync.WaitGroup

	invalidateDebounce time.Duration
	appendDebounce     time.Duration
}

// NewOrchestrator creates an orchestrator with the default debounce
// windows. The context's logger is used for all operational logging, and
// cancelling the context stops all in-flight fetches.
func NewOrchestrator(ctx context.Context, view ViewProvider, fetcher TokenFetcher) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	return &Orchestrator{
		ctx:                ctx,
		cancel:             cancel,
		view:               view,
		fetcher:            fetcher,
		registered:         make(map[lsp.BufferID]*lsp.Buffer),
		failureCounts:      make(map[lsp.BufferID]int),
		tasks:              make(map[lsp.BufferID]*task),
		invalidateDebounce: DefaultInvalidateDebounce,
		appendDebounce:     DefaultAppendDebounce,
	}
}

// SetDebounce overrides the debounce windows. Zero disables a window.
func (o *Orchestrator) SetDebounce(invalidate, append time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidateDebounce = invalidate
	o.appendDebounce = append
}

// RegisterBuffer makes a buffer eligible for refreshes. Visible buffers are
// also auto-registered by Refresh.
func (o *Orchestrator) RegisterBuffer(buffer *lsp.Buffer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registered[buffer.ID] = buffer
}

// DropBuffer forgets a buffer entirely: its task is cancelled and its
// failure count reset. Reopening a suppressed document goes through here.
func (o *Orchestrator) DropBuffer(id lsp.BufferID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.tasks[id]; ok {
		t.cancel()
		delete(o.tasks, id)
	}
	delete(o.failureCounts, id)
	delete(o.registered, id)
}

// FailureCount returns the buffer's consecutive failure count.
func (o *Orchestrator) FailureCount(id lsp.BufferID) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failureCounts[id]
}

// ShouldSkipBuffer reports whether the buffer is suppressed after too many
// consecutive failures.
func (o *Orchestrator) ShouldSkipBuffer(id lsp.BufferID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failureCounts[id] >= maxFailures
}

// InFlightBuffers returns the buffers with an active fetch, in id order.
func (o *Orchestrator) InFlightBuffers() []lsp.BufferID {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]lsp.BufferID, 0, len(o.tasks))
	for id := range o.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FailedBuffers returns the buffers with at least one recorded failure and
// their counts.
func (o *Orchestrator) FailedBuffers() map[lsp.BufferID]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	failed := make(map[lsp.BufferID]int, len(o.failureCounts))
	for id, count := range o.failureCounts {
		failed[id] = count
	}
	return failed
}

// Refresh handles one trigger: it maps the reason to an invalidation
// strategy and debounce window, recollects the visible buffer set, and
// spawns or coalesces per-buffer fetch tasks.
func (o *Orchestrator) Refresh(reason Reason) {
	logger := zerolog.Ctx(o.ctx)

	strategy := reason.strategy()

	var debounce time.Duration
	if !reason.bypassesDebounce() {
		o.mu.Lock()
		if strategy.ShouldInvalidate() {
			debounce = o.invalidateDebounce
		} else {
			debounce = o.appendDebounce
		}
		o.mu.Unlock()
	}

	visible := o.view.VisibleExcerpts()
	logger.Debug().
		Str("reason", reason.String()).
		Int("excerpts", len(visible)).
		Msg("semantic token refresh triggered")

	// Editing one buffer refreshes every visible buffer of the same
	// language, since cross-file edits invalidate sibling tokens too.
	if reason.kind == reasonBufferEdited {
		language, ok := o.languageOf(reason.buffer)
		if !ok {
			return
		}
		for id, excerpt := range visible {
			if excerpt.Buffer.Language != language {
				delete(visible, id)
			}
		}
	}

	type fetchTarget struct {
		buffer *lsp.Buffer
		ranges []position.Range
	}
	targets := make(map[lsp.BufferID]*fetchTarget)

	o.mu.Lock()
	for _, excerpt := range visible {
		buffer := excerpt.Buffer
		if _, ok := o.registered[buffer.ID]; !ok {
			o.registered[buffer.ID] = buffer
		}
		if o.failureCounts[buffer.ID] >= maxFailures {
			continue
		}
		target, ok := targets[buffer.ID]
		if !ok {
			target = &fetchTarget{buffer: buffer}
			targets[buffer.ID] = target
		}
		target.ranges = append(target.ranges, excerpt.Range)
	}

	for id, target := range targets {
		existing, hasTask := o.tasks[id]
		if hasTask && !strategy.ShouldInvalidate() && !reason.ignorePreviousFetches() {
			// Coalesce: an equivalent fetch is already running.
			continue
		}
		if hasTask {
			existing.cancel()
		}

		o.generation++
		gen := o.generation
		ctx, cancel := context.WithCancel(o.ctx)
		o.tasks[id] = &task{cancel: cancel, generation: gen}

		o.wg.Add(1)
		go o.runFetch(ctx, gen, target.buffer, target.ranges, strategy, debounce)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) runFetch(
	ctx context.Context,
	gen uint64,
	buffer *lsp.Buffer,
	ranges []position.Range,
	strategy tokencache.InvalidationStrategy,
	debounce time.Duration,
) {
	defer o.wg.Done()
	logger := zerolog.Ctx(o.ctx)

	if debounce > 0 {
		timer := time.NewTimer(debounce)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	err := o.fetcher.RequestTokens(ctx, buffer, ranges, strategy)
	if ctx.Err() != nil {
		// Superseded or shut down: a cancelled task leaves no bookkeeping
		// behind, the replacement owns the table entry now.
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.tasks[buffer.ID]; ok && t.generation == gen {
		delete(o.tasks, buffer.ID)
	}
	if err != nil {
		o.failureCounts[buffer.ID]++
		count := o.failureCounts[buffer.ID]
		logger.Warn().
			Err(err).
			Uint64("buffer", uint64(buffer.ID)).
			Int("failures", count).
			Msg("semantic token fetch failed")
		if count >= maxFailures {
			logger.Warn().
				Uint64("buffer", uint64(buffer.ID)).
				Int("failures", count).
				Msg("buffer failed semantic tokens too many times, stopping automatic retries")
		}
	} else {
		delete(o.failureCounts, buffer.ID)
		logger.Debug().
			Uint64("buffer", uint64(buffer.ID)).
			Msg("semantic token fetch succeeded")
	}
}

func (o *Orchestrator) languageOf(id lsp.BufferID) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	buffer, ok := o.registered[id]
	if !ok {
		return "", false
	}
	return buffer.Language, true
}

// Close cancels every in-flight fetch and waits for the goroutines to
// drain.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = make(map[lsp.BufferID]*task)
}
