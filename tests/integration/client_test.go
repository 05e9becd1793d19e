package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pagekit-go/pagekit/internal/testutil"
	"github.com/pagekit-go/pagekit/pkg/cache"
	"github.com/pagekit-go/pagekit/pkg/client"
	"github.com/pagekit-go/pagekit/pkg/logging"
	"github.com/pagekit-go/pagekit/pkg/pager"
	"github.com/pagekit-go/pagekit/pkg/ratelimit"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newCachedClient builds a client backed by the mock API with Redis cache
// and shared rate limit state.
func newCachedClient(t *testing.T, mock *testutil.MockAPI, redisClient *redis.Client) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(mock.URL(), "pagekit-integration/1.0")
	cfg.Cache = cache.NewStore(redisClient)
	cfg.RateLimiter = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

// TestFullRequestFlow tests the complete request flow: rate limit gate,
// cache miss, upstream fetch, cache store, then conditional revalidation.
func TestFullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	c := newCachedClient(t, mock, redisClient)

	ctx := context.Background()

	// Request 1: cache miss, fetched from upstream and stored.
	page1, err := c.GetPage(ctx, "/v1/status", nil)
	if err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}
	if page1.FromCache {
		t.Error("Request 1 should not be served from cache")
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("After request 1: upstream requests = %d, want 1", mock.GetRequestCount())
	}

	// Wait for cache write
	time.Sleep(100 * time.Millisecond)

	// Request 2: cached ETag triggers a conditional request; the 304 is
	// answered from the cached body.
	page2, err := c.GetPage(ctx, "/v1/status", nil)
	if err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	if !page2.FromCache {
		t.Error("Request 2 should be served from cache after 304")
	}
	if string(page2.Body) != `{"status": "ok"}` {
		t.Errorf("Request 2 body = %s, want cached payload", page2.Body)
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("Conditional requests = %d, want 1", mock.GetConditionalCount())
	}
}

// TestNotModified tests that a stable ETag keeps serving cached data.
func TestNotModified(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	etag := `"stable-etag-123"`
	testData := `{"items": [], "total": 0}`
	mock.SetHandler("/v1/items", testutil.NewConditionalHandler(etag, testData))

	c := newCachedClient(t, mock, redisClient)
	ctx := context.Background()

	page1, err := c.GetPage(ctx, "/v1/items", nil)
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if string(page1.Body) != testData {
		t.Errorf("First response body = %s, want %s", page1.Body, testData)
	}

	time.Sleep(100 * time.Millisecond)

	page2, err := c.GetPage(ctx, "/v1/items", nil)
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	// Server answered 304; the body must come from the cache entry.
	if string(page2.Body) != testData {
		t.Errorf("Second response body = %s, want %s (cached)", page2.Body, testData)
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("Conditional requests = %d, want 1", mock.GetConditionalCount())
	}
}

// TestCoordinatorWalkWithSharedState drives a coordinator through a
// Redis-backed client twice: the full walk and a refresh walk.
func TestCoordinatorWalkWithSharedState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.ServePagedItems("/v1/items", 45, 20)

	c := newCachedClient(t, mock, redisClient)

	coordinator, err := pager.New(pager.Config[*client.RawPage, testutil.PagedItem]{
		Fetch:    c.FetchFunc("/v1/items", client.OffsetParams("skip", "limit", 20)),
		Parse:    parsePagedItems,
		FirstKey: 0,
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	ctx := context.Background()

	walk := func() {
		t.Helper()
		for coordinator.Status() == pager.StatusIdle {
			if err := coordinator.LoadNextPage(ctx); err != nil {
				t.Fatalf("LoadNextPage failed: %v", err)
			}
		}
	}

	if err := coordinator.LoadFirstPage(ctx); err != nil {
		t.Fatalf("LoadFirstPage failed: %v", err)
	}
	walk()

	snapshot := coordinator.Snapshot()
	if len(snapshot.Items) != 45 {
		t.Errorf("Items = %d, want 45", len(snapshot.Items))
	}
	if !snapshot.IsExhausted {
		t.Errorf("Status = %s, want exhausted", snapshot.Status)
	}

	// Rate limit headers from the mock must have landed in Redis.
	state, err := cfgTracker(redisClient).GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Remaining != 100 {
		t.Errorf("Shared rate limit remaining = %d, want 100", state.Remaining)
	}

	// Refresh re-walks the same pages.
	if err := coordinator.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	walk()

	snapshot = coordinator.Snapshot()
	if len(snapshot.Items) != 45 {
		t.Errorf("Items after refresh = %d, want 45", len(snapshot.Items))
	}
	if mock.GetRequestCount() != 6 {
		t.Errorf("Upstream requests = %d, want 6 (two walks of three pages)", mock.GetRequestCount())
	}
}

// TestRateLimitBlock tests that requests are refused when the shared
// budget is critical, without touching the upstream.
func TestRateLimitBlock(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	ctx := context.Background()

	// Pre-seed Redis with a critical budget.
	lastUpdate, _ := json.Marshal(time.Now())
	redisClient.Set(ctx, ratelimit.RedisKeyRemaining, 3, 0)
	redisClient.Set(ctx, ratelimit.RedisKeyResetTimestamp, time.Now().Add(60*time.Second).Unix(), 0)
	redisClient.Set(ctx, ratelimit.RedisKeyLastUpdate, lastUpdate, 0)

	c := newCachedClient(t, mock, redisClient)

	_, err := c.GetPage(ctx, "/v1/status", nil)
	if !errors.Is(err, client.ErrRequestBlocked) {
		t.Errorf("err = %v, want ErrRequestBlocked", err)
	}

	if mock.GetRequestCount() != 0 {
		t.Errorf("Upstream requests = %d, want 0 (blocked)", mock.GetRequestCount())
	}
}

// TestCacheExpiration tests that expired cache entries are not reused.
func TestCacheExpiration(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	// Entries expire after one second.
	mock.SetResponse("/v1/status", testutil.MockResponse{
		StatusCode: 200,
		Body:       `{"status": "ok"}`,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"ETag":                  `"short-lived"`,
			"Expires":               time.Now().Add(1 * time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"),
			"X-RateLimit-Remaining": "100",
		},
	})

	store := cache.NewStore(redisClient)
	cfg := client.DefaultConfig(mock.URL(), "pagekit-integration/1.0")
	cfg.Cache = store

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	if _, err := c.GetPage(ctx, "/v1/status", nil); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	key := cache.Key{Endpoint: "/v1/status"}
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("Entry should be cached before expiry: %v", err)
	}

	// Wait for Redis to evict the entry.
	time.Sleep(2 * time.Second)

	if _, err := store.Get(ctx, key); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Expected cache miss after expiration, got: %v", err)
	}

	// The next request must hit the upstream again.
	if _, err := c.GetPage(ctx, "/v1/status", nil); err != nil {
		t.Fatalf("Post-expiry request failed: %v", err)
	}
	if mock.GetRequestCount() < 2 {
		t.Errorf("Upstream requests = %d, want >= 2 (expired entry)", mock.GetRequestCount())
	}
}

// parsePagedItems decodes the mock server's skip/limit envelope.
func parsePagedItems(raw *client.RawPage, requested pager.PageKey) (pager.PageResult[testutil.PagedItem], error) {
	var result pager.PageResult[testutil.PagedItem]

	var body testutil.PagedBody
	if err := json.Unmarshal(raw.Body, &body); err != nil {
		return result, fmt.Errorf("decode page: %w", err)
	}

	offset, _ := requested.(int)
	next := offset + len(body.Items)

	result.Items = body.Items
	result.TotalItems = body.Total
	if next >= body.Total {
		result.IsLastPage = true
	} else {
		result.NextKey = next
	}
	return result, nil
}

// cfgTracker builds a tracker for direct state inspection.
func cfgTracker(redisClient *redis.Client) *ratelimit.Tracker {
	return ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit-test"))
}
