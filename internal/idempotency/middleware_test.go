package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterHandler(calls *int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"n":` + strconv.Itoa(int(n)) + `}`))
	})
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareReplaysCompletedRequest(t *testing.T) {
	var calls int32
	h := Middleware(NewMemoryStore(), time.Minute, nil)(counterHandler(&calls, http.StatusCreated))

	first := post(h, "k1")
	second := post(h, "k1")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	post(h, "")
	post(h, "k2")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestMiddlewareDoesNotReplayFailures(t *testing.T) {
	var calls int32
	h := Middleware(NewMemoryStore(), time.Minute, nil)(counterHandler(&calls, http.StatusConflict))

	assert.Equal(t, http.StatusConflict, post(h, "k").Code)
	assert.Equal(t, http.StatusConflict, post(h, "k").Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddlewareRejectsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	_, started, err := store.Begin(context.Background(), "POST:/api/orders:busy", time.Minute)
	require.NoError(t, err)
	require.True(t, started)

	var calls int32
	h := Middleware(store, time.Minute, nil)(counterHandler(&calls, http.StatusCreated))
	rec := post(h, "busy")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_in_progress")
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestMiddlewareScopesKeys(t *testing.T) {
	var calls int32
	user := "alice"
	scope := func(*http.Request) string { return user }
	h := Middleware(NewMemoryStore(), time.Minute, scope)(counterHandler(&calls, http.StatusCreated))

	post(h, "same")
	user = "bob"
	post(h, "same")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Complete(ctx, "k", Record{Status: 201}, time.Minute))
	rec, started, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, started)
	require.NotNil(t, rec)
	assert.Equal(t, 201, rec.Status)

	now = now.Add(2 * time.Minute)
	rec, started, err = s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Nil(t, rec)
}
