package middleware

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys
	IdempotencyHeader = "Idempotency-Key"

	// RedisKeyPrefix namespaces cached responses
	RedisKeyPrefix = "idem:"

	// LockKeyPrefix namespaces in-flight locks
	LockKeyPrefix = "idem:lock:"
)

// cachedResponse is what gets replayed for a repeated key.
type cachedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// responseWriterWrapper captures the status code and body for caching.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// CacheKey scopes key to the authenticated user.
func CacheKey(userID, key string) string {
	return RedisKeyPrefix + userID + ":" + key
}

// LockKey scopes the in-flight lock to the authenticated user.
func LockKey(userID, key string) string {
	return LockKeyPrefix + userID + ":" + key
}

// Idempotency replays the first 2xx response for a repeated Idempotency-Key
// and rejects a concurrent duplicate with 409. When Redis is unavailable the
// request passes through and the database's unique key is the only guard.
func Idempotency(rdb *redis.Client, ttl, lockTTL time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := r.Header.Get(IdempotencyHeader)
			if idempotencyKey == "" || rdb == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			userID := UserID(ctx)
			cacheKey := CacheKey(userID, idempotencyKey)
			lockKey := LockKey(userID, idempotencyKey)

			raw, err := rdb.Get(ctx, cacheKey).Result()
			switch {
			case err == nil:
				var cached cachedResponse
				if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
					log.Printf("[Idempotency] Cache hit for key: %s", idempotencyKey)
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(cached.Status)
					w.Write([]byte(cached.Body))
					return
				}
				log.Printf("[Idempotency] Discarding unreadable cache entry for key: %s", idempotencyKey)
			case err != redis.Nil:
				log.Printf("[Idempotency] Cache unavailable, passing through: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", lockTTL).Result()
			if err != nil {
				log.Printf("[Idempotency] Lock acquisition error, passing through: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				log.Printf("[Idempotency] Concurrent request detected: %s", idempotencyKey)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "conflict",
					"message": "A request with this idempotency key is currently being processed",
				})
				return
			}
			defer func() {
				if err := rdb.Del(ctx, lockKey).Err(); err != nil {
					log.Printf("[Idempotency] Failed to release lock: %v", err)
				}
			}()

			wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			if wrapper.statusCode < 200 || wrapper.statusCode >= 300 {
				return
			}
			payload, err := json.Marshal(cachedResponse{Status: wrapper.statusCode, Body: wrapper.body.String()})
			if err != nil {
				return
			}
			if err := rdb.Set(ctx, cacheKey, string(payload), ttl).Err(); err != nil {
				log.Printf("[Idempotency] Failed to cache response: %v", err)
			}
		})
	}
}
