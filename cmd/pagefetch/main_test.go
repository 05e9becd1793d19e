package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pagekit-go/pagekit/internal/testutil"
	"github.com/pagekit-go/pagekit/pkg/client"
	"github.com/pagekit-go/pagekit/pkg/pager"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.baseURL != "https://dummyjson.com" {
		t.Errorf("baseURL = %q", cfg.baseURL)
	}
	if cfg.endpoint != "/products" {
		t.Errorf("endpoint = %q", cfg.endpoint)
	}
	if cfg.pageLimit != 20 {
		t.Errorf("pageLimit = %d, want 20", cfg.pageLimit)
	}
}

func TestLoadConfig_InvalidPageLimit(t *testing.T) {
	t.Setenv("PAGE_LIMIT", "zero")

	if _, err := loadConfig(); err == nil {
		t.Error("expected error for non-numeric PAGE_LIMIT")
	}

	t.Setenv("PAGE_LIMIT", "-5")

	if _, err := loadConfig(); err == nil {
		t.Error("expected error for negative PAGE_LIMIT")
	}
}

func TestOffsetParser(t *testing.T) {
	parse := offsetParser("products", "total")

	page := &client.RawPage{
		Body: []byte(`{"products": [{"id": 1}, {"id": 2}], "total": 5, "skip": 0, "limit": 2}`),
	}

	result, err := parse(page, 0)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("got %d items, want 2", len(result.Items))
	}
	if result.TotalItems != 5 {
		t.Errorf("TotalItems = %d, want 5", result.TotalItems)
	}
	if result.IsLastPage {
		t.Error("page 0 of 5 should not be the last page")
	}
	if result.NextKey != 2 {
		t.Errorf("NextKey = %v, want 2", result.NextKey)
	}

	// Final page: offset 4 + 1 item reaches the total.
	page.Body = []byte(`{"products": [{"id": 5}], "total": 5}`)
	result, err = parse(page, 4)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !result.IsLastPage {
		t.Error("final page should report IsLastPage")
	}
}

func TestOffsetParser_MissingItemsField(t *testing.T) {
	parse := offsetParser("products", "total")

	_, err := parse(&client.RawPage{Body: []byte(`{"total": 5}`)}, 0)
	if err == nil {
		t.Error("expected error when items field is absent")
	}

	_, err = parse(&client.RawPage{Body: []byte(`not json`)}, 0)
	if err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestWalk_FetchesAllPages(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.ServePagedItems("/items", 45, 30)

	httpClient, err := client.New(client.DefaultConfig(mock.URL(), "pagefetch-test/1.0"))
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	coordinator, err := pager.New(pager.Config[*client.RawPage, json.RawMessage]{
		Fetch:    httpClient.FetchFunc("/items", client.OffsetParams("skip", "limit", 20)),
		Parse:    offsetParser("items", "total"),
		FirstKey: 0,
	})
	if err != nil {
		t.Fatalf("pager.New failed: %v", err)
	}

	if err := walk(context.Background(), coordinator); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	snapshot := coordinator.Snapshot()
	if len(snapshot.Items) != 45 {
		t.Errorf("got %d items, want 45", len(snapshot.Items))
	}
	if !snapshot.IsExhausted {
		t.Errorf("status = %s, want exhausted", snapshot.Status)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PAGEFETCH_TEST_KEY", "set")

	if got := getEnv("PAGEFETCH_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("getEnv = %q, want %q", got, "set")
	}
	if got := getEnv("PAGEFETCH_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv = %q, want %q", got, "fallback")
	}
}
