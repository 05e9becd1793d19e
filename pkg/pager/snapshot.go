package pager

import "github.com/pagekit-go/pagekit/pkg/classify"

// Snapshot is the read-only projection of coordinator state. It is
// recomputed on every call, never cached, so it can never diverge from
// the coordinator's internal state. The Items slice is a copy; mutating
// it does not affect the coordinator.
type Snapshot[T any] struct {
	// Items accumulated so far, in page arrival order then in-page order.
	Items []T

	// Status is the lifecycle state at snapshot time.
	Status Status

	// Err is the classified error from the last failed fetch, nil
	// outside the error state.
	Err *classify.Error

	// TotalItems is the most recent source-reported total, 0 when the
	// source never reported one.
	TotalItems int

	IsLoadingFirstPage bool
	IsLoadingNextPage  bool
	IsRefreshing       bool
	HasError           bool
	IsExhausted        bool
}

// Snapshot returns the current projection.
func (c *Coordinator[R, T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator[R, T]) snapshotLocked() Snapshot[T] {
	items := make([]T, len(c.items))
	copy(items, c.items)

	var err *classify.Error
	if c.status == StatusError {
		err = c.lastErr
	}

	return Snapshot[T]{
		Items:              items,
		Status:             c.status,
		Err:                err,
		TotalItems:         c.totalItems,
		IsLoadingFirstPage: c.status == StatusFetchingFirstPage,
		IsLoadingNextPage:  c.status == StatusFetchingNextPage,
		IsRefreshing:       c.status == StatusRefreshing,
		HasError:           c.status == StatusError,
		IsExhausted:        c.status == StatusExhausted,
	}
}
