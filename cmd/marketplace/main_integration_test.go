//go:build integration

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sternrassler/marketplace-client/internal/config"
	"github.com/Sternrassler/marketplace-client/internal/server"
	"github.com/Sternrassler/marketplace-client/internal/testutil"
	"github.com/Sternrassler/marketplace-client/pkg/api"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(t *testing.T) string {
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
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return host + ":" + port.Port()
}

func testConfig(apiURL, redisAddr string) *config.Config {
	c := config.Default()
	c.APIURL = apiURL
	c.RedisURL = redisAddr
	return &c
}

func TestStack_RedisMirrorSurvivesRestart(t *testing.T) {
	addr := setupRedis(t)
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	ctx := context.Background()
	cfg := testConfig(mock.URL(), addr)

	first, err := newStack(ctx, cfg)
	if err != nil {
		t.Fatalf("newStack failed: %v", err)
	}
	srv := server.New(server.Options{Gateway: first.gateway, Schema: first.schema, Cache: first.cache, Ready: first.ready})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categories/cars/filters?spec.brandId=toyota", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("filters status = %d: %s", rec.Code, rec.Body.String())
	}

	mirrored, err := first.redis.HLen(ctx, cfg.RedisNamespace).Result()
	if err != nil {
		t.Fatalf("HLen failed: %v", err)
	}
	if mirrored != 2 {
		t.Errorf("mirrored entries = %d, want 2 (schema and aggregations)", mirrored)
	}
	first.Close()

	// A fresh process over the same Redis is served from the mirror
	mock.Reset()
	second, err := newStack(ctx, cfg)
	if err != nil {
		t.Fatalf("newStack failed: %v", err)
	}
	defer second.Close()

	if _, err := second.schema.GetBaseAttributes(ctx, "cars"); err != nil {
		t.Fatalf("GetBaseAttributes failed: %v", err)
	}
	if n := mock.Calls(testutil.FieldCategoryAttributes); n != 0 {
		t.Errorf("schema fetched %d times despite mirror", n)
	}

	// The aggregation entry lives only in the mirror of this process
	second.gateway.InvalidateByPattern(ctx, api.PatternAggregations)
	left, _ := second.redis.HLen(ctx, cfg.RedisNamespace).Result()
	if left != 1 {
		t.Errorf("mirrored entries after invalidation = %d, want 1", left)
	}
}

func TestStack_Ready(t *testing.T) {
	addr := setupRedis(t)
	mock := testutil.StartMockMarketplace()
	defer mock.Close()
	ctx := context.Background()

	st, err := newStack(ctx, testConfig(mock.URL(), addr))
	if err != nil {
		t.Fatalf("newStack failed: %v", err)
	}
	srv := server.New(server.Options{Gateway: st.gateway, Schema: st.schema, Ready: st.ready})

	t.Run("ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		// Close Redis to simulate failure
		st.Close()

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", rec.Code)
		}
	})

	if _, err := newStack(ctx, testConfig(mock.URL(), "127.0.0.1:1")); err == nil {
		t.Error("newStack should fail when Redis is unreachable")
	}
}
