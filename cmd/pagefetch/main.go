package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pagekit-go/pagekit/pkg/cache"
	"github.com/pagekit-go/pagekit/pkg/client"
	"github.com/pagekit-go/pagekit/pkg/logging"
	"github.com/pagekit-go/pagekit/pkg/pager"
	"github.com/pagekit-go/pagekit/pkg/ratelimit"
)

// config is assembled from environment variables. Every field has a
// default aimed at the public DummyJSON demo API.
type config struct {
	baseURL     string
	endpoint    string
	itemsField  string
	totalField  string
	skipParam   string
	limitParam  string
	pageLimit   int
	userAgent   string
	redisURL    string
	metricsPort string
}

func loadConfig() (config, error) {
	cfg := config{
		baseURL:     getEnv("BASE_URL", "https://dummyjson.com"),
		endpoint:    getEnv("ENDPOINT", "/products"),
		itemsField:  getEnv("ITEMS_FIELD", "products"),
		totalField:  getEnv("TOTAL_FIELD", "total"),
		skipParam:   getEnv("SKIP_PARAM", "skip"),
		limitParam:  getEnv("LIMIT_PARAM", "limit"),
		userAgent:   getEnv("USER_AGENT", "pagefetch/0.1.0"),
		redisURL:    os.Getenv("REDIS_URL"),
		metricsPort: os.Getenv("METRICS_PORT"),
	}

	limit, err := strconv.Atoi(getEnv("PAGE_LIMIT", "20"))
	if err != nil || limit <= 0 {
		return cfg, fmt.Errorf("PAGE_LIMIT must be a positive integer")
	}
	cfg.pageLimit = limit

	return cfg, nil
}

func main() {
	logger := logging.Setup(logging.ConfigFromEnv())

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientCfg := client.DefaultConfig(cfg.baseURL, cfg.userAgent)

	// Redis is optional; without it the client runs uncached and
	// without shared rate limit state.
	if cfg.redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", cfg.redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis_url", cfg.redisURL).Msg("Connected to Redis")

		clientCfg.Cache = cache.NewStore(redisClient)
		clientCfg.RateLimiter = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
	}

	httpClient, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create HTTP client")
	}

	if cfg.metricsPort != "" {
		go serveMetrics(logger, cfg.metricsPort)
	}

	coordinator, err := pager.New(pager.Config[*client.RawPage, json.RawMessage]{
		Fetch:    httpClient.FetchFunc(cfg.endpoint, client.OffsetParams(cfg.skipParam, cfg.limitParam, cfg.pageLimit)),
		Parse:    offsetParser(cfg.itemsField, cfg.totalField),
		FirstKey: 0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create coordinator")
	}

	start := time.Now()
	if err := walk(ctx, coordinator); err != nil {
		logger.Fatal().Err(err).Msg("Fetch failed")
	}

	snapshot := coordinator.Snapshot()
	logger.Info().
		Int("items", len(snapshot.Items)).
		Int("total", snapshot.TotalItems).
		Dur("duration", time.Since(start)).
		Msg("Fetched all pages")
}

// offsetParser decodes one offset-paginated JSON body. The item array and
// total count live under configurable top-level fields.
func offsetParser(itemsField, totalField string) pager.ParseFunc[*client.RawPage, json.RawMessage] {
	return func(raw *client.RawPage, requested pager.PageKey) (pager.PageResult[json.RawMessage], error) {
		var result pager.PageResult[json.RawMessage]

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw.Body, &envelope); err != nil {
			return result, fmt.Errorf("failed to decode page body: %w", err)
		}

		itemsRaw, ok := envelope[itemsField]
		if !ok {
			return result, fmt.Errorf("response has no %q field", itemsField)
		}
		if err := json.Unmarshal(itemsRaw, &result.Items); err != nil {
			return result, fmt.Errorf("failed to decode %q array: %w", itemsField, err)
		}

		if totalRaw, ok := envelope[totalField]; ok {
			if err := json.Unmarshal(totalRaw, &result.TotalItems); err != nil {
				return result, fmt.Errorf("failed to decode %q count: %w", totalField, err)
			}
		}

		offset, _ := requested.(int)
		next := offset + len(result.Items)
		if result.TotalItems > 0 && next >= result.TotalItems {
			result.IsLastPage = true
		} else {
			result.NextKey = next
		}

		return result, nil
	}
}

// walk drives the coordinator until the source is exhausted.
func walk(ctx context.Context, coordinator *pager.Coordinator[*client.RawPage, json.RawMessage]) error {
	if err := coordinator.LoadFirstPage(ctx); err != nil {
		return err
	}

	for coordinator.Status() == pager.StatusIdle {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := coordinator.LoadNextPage(ctx); err != nil {
			return err
		}
	}

	return nil
}

func serveMetrics(logger zerolog.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
