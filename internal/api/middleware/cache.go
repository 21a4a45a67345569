package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

// CacheKeyFunc derives the cache key of a request and the generation counter
// guarding it. An empty key disables caching for the request; an empty
// generation key leaves the entry unversioned.
type CacheKeyFunc func(r *http.Request) (key, generationKey string)

// CacheMiddleware serves public feedback views from the shared cache.
// Entries are stored under their key plus the current generation, so bumping
// the generation makes every earlier entry unreachable. A response is only
// stored if the generation did not move while it was being produced.
type CacheMiddleware struct {
	cache      providers.CacheProvider
	ttlSeconds int
	key        CacheKeyFunc
}

// cachedResponse is what gets stored per key
type cachedResponse struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// NewCacheMiddleware creates a new cache middleware. cache may be nil.
func NewCacheMiddleware(cache providers.CacheProvider, ttlSeconds int, key CacheKeyFunc) *CacheMiddleware {
	return &CacheMiddleware{
		cache:      cache,
		ttlSeconds: ttlSeconds,
		key:        key,
	}
}

// Middleware returns the cache middleware handler
func (m *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || m.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		baseKey, generationKey := m.key(r)
		if baseKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		generation, err := m.generation(r, generationKey)
		if err != nil {
			observability.LoggerFromContext(r.Context()).Warn().Err(err).Str("key", generationKey).Msg("cache generation unavailable; bypassing cache")
			w.Header().Set("X-Cache", "BYPASS")
			next.ServeHTTP(w, r)
			return
		}
		cacheKey := versionedKey(baseKey, generation)

		if entry, ok := m.lookup(r, cacheKey); ok {
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Content-Type", entry.ContentType)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(entry.Body)
			return
		}

		w.Header().Set("X-Cache", "MISS")
		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		next.ServeHTTP(recorder, r)

		// only complete successful bodies are shared between learners
		if recorder.statusCode != http.StatusOK || recorder.body.Len() == 0 {
			return
		}
		if current, err := m.generation(r, generationKey); err != nil || current != generation {
			return
		}
		m.store(r, cacheKey, cachedResponse{
			ContentType: w.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		})
	})
}

// generation reads the counter at key; an absent counter is generation zero
func (m *CacheMiddleware) generation(r *http.Request, key string) (int64, error) {
	if key == "" {
		return 0, nil
	}

	data, err := m.cache.Get(r.Context(), key)
	if errors.Is(err, providers.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("generation %s is not a counter: %w", key, err)
	}
	return n, nil
}

func versionedKey(key string, generation int64) string {
	return key + "@" + strconv.FormatInt(generation, 10)
}

func (m *CacheMiddleware) lookup(r *http.Request, cacheKey string) (cachedResponse, bool) {
	var entry cachedResponse

	data, err := m.cache.Get(r.Context(), cacheKey)
	if err != nil {
		return entry, false
	}
	if err := json.Unmarshal(data, &entry); err != nil || entry.ContentType == "" {
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Str("key", cacheKey).Msg("ignoring unreadable cached response")
		return entry, false
	}
	return entry, true
}

func (m *CacheMiddleware) store(r *http.Request, cacheKey string, entry cachedResponse) {
	logger := observability.LoggerFromContext(r.Context())

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Warn().Err(err).Str("key", cacheKey).Msg("failed to encode response for cache")
		return
	}
	if err := m.cache.Set(r.Context(), cacheKey, data, m.ttlSeconds); err != nil {
		logger.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache response")
	}
}

// responseRecorder tees the response to the client and a buffer
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.written {
		return
	}
	r.statusCode = statusCode
	r.written = true
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
