package pager

// KeyTracker maintains the requested-key history and the mapping from
// each successfully fetched key to the key that follows it. It decides
// whether another page exists and recognizes terminal conditions.
//
// Not safe for concurrent use; the owning Coordinator serializes access.
type KeyTracker struct {
	first   PageKey
	history []PageKey
	next    map[PageKey]PageKey
}

// NewKeyTracker creates a tracker starting from the given first key
// (commonly 0 or nil).
func NewKeyTracker(first PageKey) *KeyTracker {
	return &KeyTracker{
		first: first,
		next:  make(map[PageKey]PageKey),
	}
}

// FirstKey returns the configured initial key.
func (t *KeyTracker) FirstKey() PageKey {
	return t.first
}

// RecordRequested appends a key to the request history.
func (t *KeyTracker) RecordRequested(key PageKey) {
	t.history = append(t.history, key)
}

// NextKeyAfter records and returns the key following a successful fetch
// of requested. It returns false (exhaustion) when the result was the
// last page, contained zero items, or carried no next key. An empty page
// is exhaustion even when the source supplied a next key; trusting it
// would risk an infinite empty-page loop.
func (t *KeyTracker) NextKeyAfter(requested PageKey, itemCount int, next PageKey, lastPage bool) (PageKey, bool) {
	if lastPage || itemCount == 0 || next == nil {
		return nil, false
	}
	t.Record(requested, next)
	return next, true
}

// Record stores the requested-key to next-key association for replay.
func (t *KeyTracker) Record(requested, next PageKey) {
	t.next[requested] = next
}

// NextAfter returns the recorded key following requested, if any.
func (t *KeyTracker) NextAfter(requested PageKey) (PageKey, bool) {
	next, ok := t.next[requested]
	return next, ok
}

// Tip returns the most recently requested key.
func (t *KeyTracker) Tip() (PageKey, bool) {
	if len(t.history) == 0 {
		return nil, false
	}
	return t.history[len(t.history)-1], true
}

// History returns a copy of the requested-key sequence.
func (t *KeyTracker) History() []PageKey {
	out := make([]PageKey, len(t.history))
	copy(out, t.history)
	return out
}

// Reset clears the history and all recorded mappings. The first key is
// retained.
func (t *KeyTracker) Reset() {
	t.history = t.history[:0]
	t.next = make(map[PageKey]PageKey)
}
