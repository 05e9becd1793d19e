// Package cache provides a Redis-backed cache for paged API responses.
//
// The store keeps one entry per (endpoint, query, page key) with a TTL
// derived from the response's Expires header, plus ETag/Last-Modified
// support for conditional requests. It is layered beside the fetch
// coordinator, not inside it: pkg/client consults the store before going
// to the network, the coordinator never sees it.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewStore(redisClient)
//
//	key := cache.Key{
//		Endpoint: "/products",
//		Query:    url.Values{"limit": []string{"20"}},
//		PageKey:  20,
//	}
//
//	entry, err := store.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the source
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// the source returns 304 if the page is unchanged
//	}
//
// Every entry carries an expiry, so the cache is bounded by Redis TTL
// eviction; no entry outlives its Expires header (or the DefaultTTL
// fallback when the source sends none).
package cache
