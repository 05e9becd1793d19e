// Package pager provides a sequential paginated-fetch coordinator with
// classified error handling.
//
// A Coordinator owns the page-key chain for one logical list: it drives
// page-by-page retrieval through a caller-supplied fetch function, parses
// each raw response into a PageResult via a caller-supplied parser,
// accumulates items, and surfaces progress through a read-only Snapshot.
// Failures are classified with pkg/classify and never re-thrown; a caller
// observes them through the snapshot or an observer callback.
//
// Example usage:
//
//	coord, err := pager.New(pager.Config[*client.RawPage, Product]{
//		Fetch:    apiClient.FetchFunc("/products", params),
//		Parse:    parseProducts,
//		FirstKey: 0,
//	})
//	if err != nil { ... }
//
//	_ = coord.LoadFirstPage(ctx)
//	for coord.Status() == pager.StatusIdle {
//		_ = coord.LoadNextPage(ctx)
//	}
//	snap := coord.Snapshot()
//
// The coordinator:
//   - Requests pages strictly sequentially (one in-flight fetch at most)
//   - Coalesces redundant concurrent commands instead of queuing them
//   - Preserves accumulated items across failures and retries
//   - Resets synchronously on Refresh before the new fetch begins
//   - Discards late results from fetches superseded by a Refresh
//
// It applies no automatic retry or backoff; Retry is caller-initiated.
// For bulk retrieval of sources that report total pages up front, see
// pkg/batch.
package pager
