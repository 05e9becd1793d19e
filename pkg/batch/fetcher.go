// Package batch provides parallel fetching for sources that report their
// total page count up front.
package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// Buffer size for channels (default: estimated total pages)
	BufferSize int
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		Timeout:        15 * time.Second,
		BufferSize:     256,
	}
}

// PageFunc fetches a single 1-based page and reports the total page count.
// The total returned from page 1 drives the fan-out; later pages may return
// any total, it is ignored.
type PageFunc[T any] func(ctx context.Context, pageNum int) (items []T, totalPages int, err error)

// pageResult represents the result of fetching a single page
type pageResult[T any] struct {
	pageNumber int
	items      []T
	err        error
}

// Fetcher handles parallel fetching of all pages of a counted source
type Fetcher[T any] struct {
	fetch  PageFunc[T]
	config Config
	logger zerolog.Logger
}

// New creates a batch fetcher around a single-page fetch function
func New[T any](fetch PageFunc[T], config Config) *Fetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}

	return &Fetcher[T]{
		fetch:  fetch,
		config: config,
		logger: log.With().Str("component", "batch").Logger(),
	}
}

// FetchAll fetches every page in parallel using a worker pool and returns
// the items assembled in page order. When a worker fails, the pages fetched
// so far are still returned together with the first worker error.
func (f *Fetcher[T]) FetchAll(ctx context.Context) ([]T, error) {
	start := time.Now()

	// Fetch first page to get total page count
	firstItems, totalPages, err := f.fetch(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	f.logger.Info().
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	// Single page optimization
	if totalPages <= 1 {
		f.logger.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return firstItems, nil
	}

	pages := make(map[int][]T, totalPages)
	pages[1] = firstItems

	pageQueue := make(chan int, f.config.BufferSize)
	pageResults := make(chan pageResult[T], f.config.BufferSize)
	workerErrors := make(chan error, f.config.MaxConcurrency)

	// workersDone releases the queue filler when workers abort before
	// draining the queue, so the filler cannot block forever.
	workersDone := make(chan struct{})

	// Fill page queue (skip page 1, already fetched)
	go func() {
		defer close(pageQueue)
		for page := 2; page <= totalPages; page++ {
			select {
			case pageQueue <- page:
			case <-workersDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < f.config.MaxConcurrency; i++ {
		wg.Add(1)
		go f.worker(ctx, pageQueue, pageResults, workerErrors, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(workersDone)
		close(pageResults)
		close(workerErrors)
	}()

	fetchedPages := 1 // First page already fetched
	for result := range pageResults {
		pages[result.pageNumber] = result.items
		fetchedPages++

		// Progress logging every 50 pages
		if fetchedPages%50 == 0 {
			f.logger.Info().
				Int("fetched", fetchedPages).
				Int("total", totalPages).
				Msg("Fetch progress")
		}
	}

	items := assemble(pages)

	// Check for errors
	select {
	case err := <-workerErrors:
		if err != nil {
			f.logger.Warn().
				Err(err).
				Int("fetched_pages", fetchedPages).
				Int("total_pages", totalPages).
				Msg("Worker error, returning partial results")
			return items, fmt.Errorf("worker error (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
		}
	default:
	}

	f.logger.Info().
		Int("pages", fetchedPages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, nil
}

// assemble flattens the fetched pages into a single slice in page order,
// skipping pages that never arrived.
func assemble[T any](pages map[int][]T) []T {
	fetched := make([]int, 0, len(pages))
	for page := range pages {
		fetched = append(fetched, page)
	}
	sort.Ints(fetched)

	total := 0
	for _, page := range fetched {
		total += len(pages[page])
	}

	items := make([]T, 0, total)
	for _, page := range fetched {
		items = append(items, pages[page]...)
	}
	return items
}

// worker processes pages from the queue
func (f *Fetcher[T]) worker(ctx context.Context, pageQueue <-chan int, results chan<- pageResult[T], workerErrors chan<- error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		select {
		case <-ctx.Done():
			f.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		// Fetch page with timeout
		pageCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
		items, _, err := f.fetch(pageCtx, pageNum)
		cancel()

		if err != nil {
			f.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")

			// Non-blocking error send
			select {
			case workerErrors <- err:
			default:
			}
			return
		}

		select {
		case results <- pageResult[T]{pageNumber: pageNum, items: items}:
		case <-ctx.Done():
			f.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled after fetch)")
			return
		}

		pagesProcessed++
	}

	if pagesProcessed > 0 {
		f.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
