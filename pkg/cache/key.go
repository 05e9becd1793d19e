package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies one cached page response.
type Key struct {
	// Endpoint is the request path (e.g. "/products").
	Endpoint string

	// Query holds the request query parameters.
	Query url.Values

	// PageKey is the opaque page identifier (offset, cursor, ...),
	// nil for unpaged requests.
	PageKey any
}

// String generates a deterministic cache key string.
// Format: pagecache:endpoint:query1=val1:query2=val2:page=<key>
//
// Example:
//
//	pagecache:products:limit=20:page=40
func (k Key) String() string {
	parts := []string{"pagecache"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism.
	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Query.Get(name)))
		}
	}

	if k.PageKey != nil {
		parts = append(parts, fmt.Sprintf("page=%v", k.PageKey))
	}

	return strings.Join(parts, ":")
}
