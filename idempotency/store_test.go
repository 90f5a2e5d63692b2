package idempotency

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestStoreBeginCompleteReplay(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := Key("user-1", "POST", "/api/v1/agreements/propose", "abc")

	stored, err := store.Begin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, err = store.Begin(ctx, key)
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, store.Complete(ctx, key, Response{Status: 200, ContentType: "application/json", Body: []byte(`{"id":"agr-1"}`)}))

	stored, err = store.Begin(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 200, stored.Status)
	assert.JSONEq(t, `{"id":"agr-1"}`, string(stored.Body))

	mr.FastForward(2 * time.Hour)
	stored, err = store.Begin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, stored, "expired responses are claimable again")
}

func TestStoreRelease(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))

	stored, err := store.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestMiddlewareReplaysResponse(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store, func(*http.Request) string { return "user-1" }, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"agr-1"}`))
		}),
	)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agreements/propose", nil)
		req.Header.Set(HeaderKey, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":"agr-1"}`, rec.Body.String())
	}
	assert.Equal(t, 1, calls)
}

func TestMiddlewareReleasesOnServerError(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store, func(*http.Request) string { return "user-1" }, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}),
	)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agreements/a/accept", nil)
		req.Header.Set(HeaderKey, "retry-me")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestMiddlewarePassThroughWithoutHeader(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store, func(*http.Request) string { return "user-1" }, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }),
	)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	}
	assert.Equal(t, 2, calls)
}
