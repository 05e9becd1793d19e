package pager

import "context"

// PageKey identifies a page request: an integer offset, a page number, a
// cursor string, or nil for "not yet requested". Keys are opaque to the
// coordinator; only the caller-supplied parser interprets them. Values
// must be comparable (they are used as map keys).
type PageKey any

// PageResult is one parsed page of items, produced by the caller's parser
// from a raw page response.
type PageResult[T any] struct {
	// Items in in-page order.
	Items []T

	// NextKey is the key for the following page, nil when unknown.
	// Ignored when IsLastPage is true.
	NextKey PageKey

	// IsLastPage marks the final page regardless of NextKey.
	IsLastPage bool

	// TotalItems is the source-reported total item count.
	// Zero or negative means the source did not report one.
	TotalItems int
}

// FetchFunc retrieves the raw response for one page. All failures must
// surface through the returned error; implementations must not panic.
type FetchFunc[R any] func(ctx context.Context, key PageKey) (R, error)

// ParseFunc converts a raw page response into a PageResult. It must be
// pure: no I/O, no retained references to the coordinator.
type ParseFunc[R, T any] func(raw R, requested PageKey) (PageResult[T], error)

// Status is the coordinator lifecycle state.
type Status string

const (
	// StatusIdle means the coordinator is ready for the next command.
	StatusIdle Status = "idle"

	// StatusFetchingFirstPage means the initial page fetch is in flight.
	StatusFetchingFirstPage Status = "fetching_first_page"

	// StatusFetchingNextPage means a follow-up page fetch is in flight.
	StatusFetchingNextPage Status = "fetching_next_page"

	// StatusRefreshing means a full reset and refetch is in flight.
	StatusRefreshing Status = "refreshing"

	// StatusError means the last fetch failed; Retry or Refresh resume.
	StatusError Status = "error"

	// StatusExhausted means no further pages exist until a Refresh.
	StatusExhausted Status = "exhausted"
)

// fetching reports whether the status denotes an in-flight fetch.
func (s Status) fetching() bool {
	switch s {
	case StatusFetchingFirstPage, StatusFetchingNextPage, StatusRefreshing:
		return true
	default:
		return false
	}
}
