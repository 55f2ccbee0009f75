package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moments/internal/storage"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func oembedServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, videoURL, r.URL.Query().Get("url"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	srv := oembedServer(t, http.StatusOK,
		`{"title":"Never Gonna","author_name":"Rick","thumbnail_url":"https://i.ytimg.com/vi/x/hq.jpg"}`, nil)

	f := NewFetcher(nil, WithEndpoint(srv.URL))
	info, err := f.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, Info{
		VideoID:      "dQw4w9WgXcQ",
		Title:        "Never Gonna",
		Author:       "Rick",
		ThumbnailURL: "https://img.youtube.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
		APIThumbnail: "https://i.ytimg.com/vi/x/hq.jpg",
		IsFromAPI:    true,
	}, info)
}

func TestFetch_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, "Not Found"},
		{"bad json", http.StatusOK, "<html>"},
		{"no title", http.StatusOK, `{"author_name":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := oembedServer(t, tt.status, tt.body, nil)
			f := NewFetcher(nil, WithEndpoint(srv.URL))

			info, err := f.Fetch(context.Background(), videoURL)
			require.NoError(t, err)
			assert.Equal(t, Fallback("dQw4w9WgXcQ"), info)
			assert.Equal(t, "YouTube Video (dQw4w9WgXcQ)", info.Title)
			assert.False(t, info.IsFromAPI)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(nil, WithEndpoint(srv.URL), WithTimeout(50*time.Millisecond))

	start := time.Now()
	info, err := f.Fetch(context.Background(), videoURL)
	require.NoError(t, err)
	assert.False(t, info.IsFromAPI)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_InvalidURL(t *testing.T) {
	f := NewFetcher(nil)
	_, err := f.Fetch(context.Background(), "https://example.com/nothing")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestFetch_UsesCache(t *testing.T) {
	var hits int32
	srv := oembedServer(t, http.StatusOK, `{"title":"Cached"}`, &hits)

	cache := NewStoreCache(storage.NewMemoryStore())
	f := NewFetcher(nil, WithEndpoint(srv.URL), WithCache(cache))

	for i := 0; i < 3; i++ {
		info, err := f.Fetch(context.Background(), videoURL)
		require.NoError(t, err)
		assert.Equal(t, "Cached", info.Title)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestFetch_DoesNotCacheFallback(t *testing.T) {
	var hits int32
	srv := oembedServer(t, http.StatusInternalServerError, "", &hits)

	f := NewFetcher(nil, WithEndpoint(srv.URL), WithCache(NewStoreCache(storage.NewMemoryStore())))
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), videoURL)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestStoreCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewStoreCache(storage.NewMemoryStore())
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "id", Info{Title: "t"}, time.Hour))

	got, ok, err := c.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t", got.Title)

	now = now.Add(time.Hour)
	_, ok, err = c.Get(ctx, "id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, CacheKeyPrefix+"id", []byte("nope")))

	_, ok, err := NewStoreCache(store).Get(ctx, "id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetch_UnreachableRedisFallsThrough(t *testing.T) {
	srv := oembedServer(t, http.StatusOK, `{"title":"Live"}`, nil)

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	f := NewFetcher(nil, WithEndpoint(srv.URL), WithCache(NewRedisCache(rdb)))
	info, err := f.Fetch(context.Background(), videoURL)
	require.NoError(t, err)
	assert.Equal(t, "Live", info.Title)
}

func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("MOMENTS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MOMENTS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisCache(rdb)
	_, ok, err := c.Get(ctx, "integration-missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "integration", Info{VideoID: "integration", Title: "t"}, time.Minute))
	got, ok, err := c.Get(ctx, "integration")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t", got.Title)
	require.NoError(t, rdb.Del(ctx, CacheKeyPrefix+"integration").Err())
}
