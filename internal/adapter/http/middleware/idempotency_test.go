package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redisStore "payment-tracker/internal/adapter/storage/redis"
	"payment-tracker/internal/core/ports"
	"payment-tracker/internal/core/ports/mocks"
	"payment-tracker/pkg/apperror"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestIdempotencyCache(t *testing.T) (*redisStore.IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisStore.NewIdempotencyCache(client, "0xMerchant"), mr
}

// idempotentRouter counts how often the handler really runs.
func idempotentRouter(cache ports.IdempotencyCache, status int, calls *int32) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/transactions/:id/:operation", Idempotency(cache, time.Hour, zerolog.Nop()), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return r
}

func postWithKey(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	cache, mr := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusOK, &calls)

	first := postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")
	second := postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplay))
	assert.Empty(t, first.Header().Get(HeaderIdempotentReplay))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")

	ttl := mr.TTL("idempotency:0xMerchant:POST:/api/v1/transactions/1/ship-order:key-1")
	assert.Equal(t, time.Hour, ttl)
}

func TestIdempotency_KeyIsScopedToPath(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusOK, &calls)

	postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")
	postWithKey(r, "/api/v1/transactions/2/ship-order", "key-1")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_NoKeyAlwaysRuns(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusOK, &calls)

	postWithKey(r, "/api/v1/transactions/1/ship-order", "")
	postWithKey(r, "/api/v1/transactions/1/ship-order", "")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_ServerErrorsAreNotCached(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusInternalServerError, &calls)

	postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")
	postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_ClientErrorsAreCached(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusConflict, &calls)

	postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")
	w := postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_InvalidKey(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusOK, &calls)

	for _, key := range []string{"has space", "<x>", strings.Repeat("k", 200)} {
		w := postWithKey(r, "/api/v1/transactions/1/ship-order", key)
		assert.Equal(t, http.StatusBadRequest, w.Code, "key %q", key)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestIdempotency_CacheDownDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")).Times(2)

	var calls int32
	r := idempotentRouter(cache, http.StatusOK, &calls)

	w := postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_SetFailureStillResponds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	cache.EXPECT().Claim(gomock.Any(), gomock.Any(), time.Hour).Return(true, nil)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), time.Hour).Return(errors.New("readonly"))
	cache.EXPECT().Release(gomock.Any(), gomock.Any()).Return(nil)

	var calls int32
	w := postWithKey(idempotentRouter(cache, http.StatusCreated, &calls), "/api/v1/transactions/1/ship-order", "key-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"call":1}`, w.Body.String())
}

func TestIdempotency_ClaimFailureDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	cache.EXPECT().Claim(gomock.Any(), gomock.Any(), time.Hour).Return(false, errors.New("connection reset"))

	var calls int32
	w := postWithKey(idempotentRouter(cache, http.StatusOK, &calls), "/api/v1/transactions/1/ship-order", "key-1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_ServerErrorReleasesKey(t *testing.T) {
	cache, mr := newTestIdempotencyCache(t)
	var calls int32
	r := idempotentRouter(cache, http.StatusServiceUnavailable, &calls)

	postWithKey(r, "/api/v1/transactions/1/ship-order", "key-1")

	assert.False(t, mr.Exists("idempotency:0xMerchant:POST:/api/v1/transactions/1/ship-order:key-1"))
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	cache, mr := newTestIdempotencyCache(t)
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.POST("/api/v1/transactions", Idempotency(cache, time.Hour, zerolog.Nop()), func(c *gin.Context) {
		panic("handler bug")
	})

	w := postWithKey(r, "/api/v1/transactions", "key-1")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, mr.Exists("idempotency:0xMerchant:POST:/api/v1/transactions:key-1"))
}

// blockingRouter holds every handler call until release is closed.
func blockingRouter(cache ports.IdempotencyCache, calls *int32, started chan<- struct{}, release <-chan struct{}) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/transactions", Idempotency(cache, time.Hour, zerolog.Nop()), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		started <- struct{}{}
		<-release
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})
	return r
}

func TestIdempotency_DuplicateWhileInFlight(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	r := blockingRouter(cache, &calls, started, release)

	firstDone := make(chan *httptest.ResponseRecorder)
	go func() { firstDone <- postWithKey(r, "/api/v1/transactions", "same-key") }()
	<-started

	dup := postWithKey(r, "/api/v1/transactions", "same-key")
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Contains(t, dup.Body.String(), apperror.CodeRequestInFlight)

	close(release)
	first := <-firstDone
	assert.Equal(t, http.StatusCreated, first.Code)

	again := postWithKey(r, "/api/v1/transactions", "same-key")
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get(HeaderIdempotentReplay))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_ConcurrentDuplicatesRunOnce(t *testing.T) {
	cache, _ := newTestIdempotencyCache(t)
	var calls int32
	r := gin.New()
	r.POST("/api/v1/transactions", Idempotency(cache, time.Hour, zerolog.Nop()), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	const clients = 8
	codes := make([]int, clients)
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = postWithKey(r, "/api/v1/transactions", "same-key").Code
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
	}
}
