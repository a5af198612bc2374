package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/indigoray/civitai-downloader/internal/testutil"
	"github.com/indigoray/civitai-downloader/pkg/api"
	"github.com/indigoray/civitai-downloader/pkg/cache"
	"github.com/indigoray/civitai-downloader/pkg/resolver"
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

func TestCacheManagerRoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	manager := cache.NewManager(redisClient)
	ctx := context.Background()

	key := cache.Key{Kind: resolver.KindUser, Identifier: "Artist"}

	if _, err := manager.Get(ctx, key); err != cache.ErrCacheMiss {
		t.Fatalf("Get on empty cache = %v, want ErrCacheMiss", err)
	}

	entry := cache.NewEntry([]byte(`{"kind": "user", "id": 500, "name": "Artist"}`))
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != cache.ErrCacheMiss {
		t.Errorf("Get after Delete = %v, want ErrCacheMiss", err)
	}
}

func TestCacheManagerExpiredEntryNotStored(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	manager := cache.NewManager(redisClient)
	ctx := context.Background()

	key := cache.Key{Kind: resolver.KindCollection, Identifier: "4242"}
	entry := &cache.Entry{
		Data:     []byte(`{}`),
		Expires:  time.Now().Add(-time.Hour),
		CachedAt: time.Now().Add(-2 * time.Hour),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != cache.ErrCacheMiss {
		t.Errorf("Get = %v, want ErrCacheMiss for an already expired entry", err)
	}
}

// TestCachedResolverFlow covers the complete resolution flow: first call
// hits the API and fills the cache, the second is served from Redis.
func TestCachedResolverFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetHandler("user.getCreator", func(w http.ResponseWriter, r *http.Request) {
		testutil.WritePage(w, http.StatusOK, `{"id": 500, "username": "Artist"}`)
	})

	client := api.NewClient(api.Config{BaseURL: mock.URL(), Token: "test"})
	cached := resolver.NewCachedResolver(
		resolver.NewUserResolver(client),
		resolver.KindUser,
		cache.NewManager(redisClient),
	)

	ctx := context.Background()

	first, err := cached.Resolve(ctx, "artist")
	if err != nil {
		t.Fatalf("First Resolve failed: %v", err)
	}
	second, err := cached.Resolve(ctx, "artist")
	if err != nil {
		t.Fatalf("Second Resolve failed: %v", err)
	}

	if first != second {
		t.Errorf("Cached unit %+v differs from resolved unit %+v", second, first)
	}
	if first.ID != 500 || first.Name != "Artist" {
		t.Errorf("Resolved unit = %+v", first)
	}

	if n := mock.Requests("user.getCreator"); n != 1 {
		t.Errorf("API called %d times, want 1 (second resolution served from cache)", n)
	}
}
