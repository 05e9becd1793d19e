package pager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagekit-go/pagekit/pkg/classify"
)

// Config holds the coordinator configuration. Fetch and Parse are
// required; everything else has a usable default.
type Config[R, T any] struct {
	// Fetch retrieves one raw page by key.
	Fetch FetchFunc[R]

	// Parse converts a raw page into a PageResult.
	Parse ParseFunc[R, T]

	// FirstKey is the key of the initial page (commonly 0 or nil).
	FirstKey PageKey

	// Classifier overrides the default failure classifier.
	Classifier classify.Classifier

	// Logger overrides the default component logger.
	Logger *zerolog.Logger
}

// Coordinator drives sequential page fetches for one logical list. It is
// safe for concurrent command calls: redundant commands issued while a
// fetch is in flight are coalesced, never queued. One instance per list;
// discard the instance when the consuming view is torn down.
type Coordinator[R, T any] struct {
	fetch    FetchFunc[R]
	parse    ParseFunc[R, T]
	classify classify.Classifier
	logger   zerolog.Logger

	mu          sync.Mutex
	tracker     *KeyTracker
	items       []T
	status      Status
	lastErr     *classify.Error
	totalItems  int
	failedKey   PageKey // key that produced lastErr
	failedFirst bool    // failed fetch was a first-page fetch

	// generation is bumped on every Refresh. A fetch captures the
	// generation when it starts and discards its result if a Refresh
	// superseded it in the meantime.
	generation uint64

	observers  map[int]func(Snapshot[T])
	observerID int
}

// New creates a coordinator. It returns an error if Fetch or Parse is
// missing.
func New[R, T any](cfg Config[R, T]) (*Coordinator[R, T], error) {
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}
	if cfg.Parse == nil {
		return nil, fmt.Errorf("parse function is required")
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = classify.Classify
	}

	logger := log.With().Str("component", "pager").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Coordinator[R, T]{
		fetch:    cfg.Fetch,
		parse:    cfg.Parse,
		classify: classifier,
		logger:   logger,
		tracker:  NewKeyTracker(cfg.FirstKey),
		status:   StatusIdle,
	}, nil
}

// LoadFirstPage fetches the initial page. It is a no-op while another
// fetch is in flight. Previously accumulated items are not cleared; use
// Refresh for a full reset.
func (c *Coordinator[R, T]) LoadFirstPage(ctx context.Context) error {
	c.mu.Lock()
	if c.status.fetching() {
		c.mu.Unlock()
		return nil
	}

	key := c.tracker.FirstKey()
	c.tracker.RecordRequested(key)
	gen := c.generation
	notify := c.transitionLocked(StatusFetchingFirstPage)
	c.mu.Unlock()
	notify()

	return c.fetchPage(ctx, key, gen, true)
}

// LoadNextPage fetches the page following the last successful one. It is
// a no-op unless the coordinator is idle with a known next key, so calls
// issued while a fetch is outstanding, after exhaustion, or before a
// successful LoadFirstPage are silently coalesced.
func (c *Coordinator[R, T]) LoadNextPage(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return nil
	}

	tip, ok := c.tracker.Tip()
	if !ok {
		c.mu.Unlock()
		return nil
	}
	key, ok := c.tracker.NextAfter(tip)
	if !ok {
		c.mu.Unlock()
		return nil
	}

	c.tracker.RecordRequested(key)
	gen := c.generation
	notify := c.transitionLocked(StatusFetchingNextPage)
	c.mu.Unlock()
	notify()

	return c.fetchPage(ctx, key, gen, false)
}

// Refresh clears accumulated items and key history synchronously, then
// refetches from the first key. Any in-flight fetch is superseded: its
// late result will be discarded. A Refresh issued while another Refresh
// is in flight is a no-op.
func (c *Coordinator[R, T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusRefreshing {
		c.mu.Unlock()
		return nil
	}

	c.generation++
	c.items = nil
	c.tracker.Reset()
	c.totalItems = 0
	c.lastErr = nil
	c.failedKey = nil

	key := c.tracker.FirstKey()
	c.tracker.RecordRequested(key)
	gen := c.generation
	notify := c.transitionLocked(StatusRefreshing)
	c.mu.Unlock()
	notify()

	refreshesTotal.Inc()
	c.logger.Debug().Msg("refresh: state cleared, refetching first page")

	return c.fetchPage(ctx, key, gen, true)
}

// Retry re-issues the fetch for the exact key that produced the last
// error, without clearing accumulated items. It is a no-op unless the
// coordinator is in the error state.
func (c *Coordinator[R, T]) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusError {
		c.mu.Unlock()
		return nil
	}

	key := c.failedKey
	first := c.failedFirst
	gen := c.generation

	next := StatusFetchingNextPage
	if first {
		next = StatusFetchingFirstPage
	}
	notify := c.transitionLocked(next)
	c.mu.Unlock()
	notify()

	retriesTotal.Inc()
	c.logger.Debug().Interface("key", key).Msg("retrying failed page")

	return c.fetchPage(ctx, key, gen, first)
}

// fetchPage performs the single fetch-parse-apply cycle shared by all
// commands. The caller has already transitioned into a fetching status.
func (c *Coordinator[R, T]) fetchPage(ctx context.Context, key PageKey, gen uint64, first bool) error {
	start := time.Now()
	raw, err := c.fetch(ctx, key)
	var result PageResult[T]
	if err == nil {
		result, err = c.parse(raw, key)
	}
	fetchDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		staleDiscardedTotal.Inc()
		c.logger.Debug().Interface("key", key).Msg("discarding result of superseded fetch")
		return nil
	}

	if err != nil {
		cerr := c.classify(err)
		if cerr == nil {
			// Custom classifiers must be total; guard anyway.
			cerr = classify.Classify(err)
		}
		c.lastErr = cerr
		c.failedKey = key
		c.failedFirst = first
		notify := c.transitionLocked(StatusError)
		c.mu.Unlock()
		notify()

		pagesFetchedTotal.WithLabelValues("error").Inc()
		c.logger.Warn().
			Interface("key", key).
			Str("kind", string(cerr.Kind)).
			Msg("page fetch failed")
		return cerr
	}

	c.items = append(c.items, result.Items...)
	if result.TotalItems > 0 {
		c.totalItems = result.TotalItems
	}
	c.lastErr = nil
	c.failedKey = nil

	next := StatusIdle
	if _, more := c.tracker.NextKeyAfter(key, len(result.Items), result.NextKey, result.IsLastPage); !more {
		next = StatusExhausted
	}
	notify := c.transitionLocked(next)
	c.mu.Unlock()
	notify()

	pagesFetchedTotal.WithLabelValues("success").Inc()
	c.logger.Debug().
		Interface("key", key).
		Int("items", len(result.Items)).
		Str("status", string(next)).
		Msg("page fetched")
	return nil
}

// transitionLocked updates the status and prepares observer callbacks.
// It must be called with the mutex held; the returned function must be
// invoked after the mutex is released so observers may call back into
// the coordinator.
func (c *Coordinator[R, T]) transitionLocked(status Status) func() {
	c.status = status
	if len(c.observers) == 0 {
		return func() {}
	}

	snap := c.snapshotLocked()
	callbacks := make([]func(Snapshot[T]), 0, len(c.observers))
	for _, fn := range c.observers {
		callbacks = append(callbacks, fn)
	}
	return func() {
		for _, fn := range callbacks {
			fn(snap)
		}
	}
}

// Subscribe registers a callback invoked after every state transition
// with a fresh snapshot. The returned function cancels the subscription.
func (c *Coordinator[R, T]) Subscribe(fn func(Snapshot[T])) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.observers == nil {
		c.observers = make(map[int]func(Snapshot[T]))
	}
	id := c.observerID
	c.observerID++
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Status returns the current lifecycle state.
func (c *Coordinator[R, T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
