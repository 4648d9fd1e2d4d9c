package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/apperror"
	"payment-tracker/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	HeaderIdempotentReplay  = "Idempotent-Replayed"
	DefaultIdempotencyTTL   = 24 * time.Hour
	maxIdempotencyKeyLength = 128
)

var idempotencyKeyRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:]+$`)

// cachedResponse is what gets stored for a key.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyRecorder tees the response body so it can be cached.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first response to a write carrying an
// Idempotency-Key header, so a retried HTTP request never reaches the ledger
// twice. The key is claimed before the handler runs; a concurrent duplicate
// gets 409 until the first response is stored. Server errors release the
// key instead of being cached. Cache failures degrade to a normal request.
func Idempotency(cache ports.IdempotencyCache, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength || !idempotencyKeyRe.MatchString(key) {
			response.Error(c, apperror.Validation("invalid Idempotency-Key header"))
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		cacheKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		if served, err := replay(c, cache, cacheKey); served || err != nil {
			if err != nil {
				log.Warn().Err(err).Msg("idempotency lookup failed, processing request")
				c.Next()
			}
			return
		}

		claimed, err := cache.Claim(ctx, cacheKey, ttl)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency claim failed, processing request")
			c.Next()
			return
		}
		if !claimed {
			// lost the race; the winner may have finished meanwhile
			if served, _ := replay(c, cache, cacheKey); !served {
				response.Error(c, apperror.ErrRequestInFlight())
				c.Abort()
			}
			return
		}

		// the claim must not outlive a failed or aborted request
		writeCtx := context.WithoutCancel(ctx)
		stored := false
		defer func() {
			if stored {
				return
			}
			if err := cache.Release(writeCtx, cacheKey); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency key")
			}
		}()

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.Bytes(),
		})
		if err != nil {
			return
		}
		if err := cache.Set(writeCtx, cacheKey, payload, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotent response")
			return
		}
		stored = true
	}
}

// replay answers c from the cache. It reports whether a response was
// written; a request still in flight is answered with 409.
func replay(c *gin.Context, cache ports.IdempotencyCache, cacheKey string) (bool, error) {
	raw, err := cache.Get(c.Request.Context(), cacheKey)
	if errors.Is(err, ports.ErrRequestInFlight) {
		response.Error(c, apperror.ErrRequestInFlight())
		c.Abort()
		return true, nil
	}
	if err != nil || raw == nil {
		return false, err
	}

	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return false, fmt.Errorf("unreadable cached response: %w", err)
	}
	c.Header(HeaderIdempotentReplay, "true")
	c.Data(cached.Status, cached.ContentType, cached.Body)
	c.Abort()
	return true, nil
}
