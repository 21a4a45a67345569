package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/coursefeedback/backend/internal/application/services"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

const (
	feedbackRateLimit  = 120
	feedbackRateWindow = time.Minute
)

// FeedbackSubmitter defines the submission operation used by the handler.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, params repositories.UpsertFeedbackParams) services.SaveResult
}

// EffectiveFeedbackReader defines the public read used by the handler.
type EffectiveFeedbackReader interface {
	ResolveEffectiveFeedback(ctx context.Context, courseKey string) ([]*entities.Feedback, error)
}

// FeedbackHandler handles learner-facing feedback endpoints.
type FeedbackHandler struct {
	submitter FeedbackSubmitter
	reader    EffectiveFeedbackReader
	cache     providers.CacheProvider
	metrics   *observability.Metrics
	local     *localRateLimiter
}

// NewFeedbackHandler creates a new feedback handler. cache and metrics may be nil.
func NewFeedbackHandler(submitter FeedbackSubmitter, reader EffectiveFeedbackReader, cache providers.CacheProvider, metrics *observability.Metrics) *FeedbackHandler {
	return &FeedbackHandler{
		submitter: submitter,
		reader:    reader,
		cache:     cache,
		metrics:   metrics,
		local:     newLocalRateLimiter(),
	}
}

type submitFeedbackRequest struct {
	UserID         string  `json:"user_id" validate:"required,notblank,max=255"`
	BlockID        string  `json:"block_id" validate:"required,notblank,max=1024"`
	BlockName      *string `json:"block_name" validate:"omitempty,max=1024"`
	Rating         *int    `json:"rating"`
	Feedback       *string `json:"feedback" validate:"omitempty,max=5000"`
	ConsentToShare *bool   `json:"consent_to_share"`
}

type publicFeedback struct {
	ID         string    `json:"id"`
	CourseKey  string    `json:"course_key"`
	BlockID    string    `json:"block_id"`
	BlockName  *string   `json:"block_name,omitempty"`
	Rating     *int      `json:"rating,omitempty"`
	RatingText string    `json:"rating_display"`
	Feedback   *string   `json:"feedback,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubmitFeedback handles POST /api/courses/{courseKey}/feedback. The
// response is 202 whether or not the record could be stored.
func (h *FeedbackHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	courseKey := courseKeyFromPath(r)
	if courseKey == "" {
		respondWithError(w, http.StatusBadRequest, "course key is required")
		return
	}

	var payload submitFeedbackRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	userID := strings.TrimSpace(payload.UserID)

	key := "feedback:rate:" + clientIP(r) + ":" + userID
	if allowed, retryAfter := h.allowRequest(r.Context(), key); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	consent := entities.DefaultConsentToShare
	if payload.ConsentToShare != nil {
		consent = *payload.ConsentToShare
	}

	result := h.submitter.Submit(r.Context(), repositories.UpsertFeedbackParams{
		CourseKey:      courseKey,
		UserID:         userID,
		BlockID:        strings.TrimSpace(payload.BlockID),
		BlockName:      payload.BlockName,
		Rating:         payload.Rating,
		Message:        payload.Feedback,
		ConsentToShare: consent,
	})
	observability.RecordSubmission(r.Context(), h.metrics, result.Saved)

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// GetCourseFeedback handles GET /api/courses/{courseKey}/feedback
func (h *FeedbackHandler) GetCourseFeedback(w http.ResponseWriter, r *http.Request) {
	courseKey := courseKeyFromPath(r)
	if courseKey == "" {
		respondWithError(w, http.StatusBadRequest, "course key is required")
		return
	}

	feedbacks, err := h.reader.ResolveEffectiveFeedback(r.Context(), courseKey)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	items := make([]publicFeedback, 0, len(feedbacks))
	for _, f := range feedbacks {
		items = append(items, publicFeedback{
			ID:         f.ID,
			CourseKey:  f.CourseKey,
			BlockID:    f.BlockID,
			BlockName:  f.BlockName,
			Rating:     f.Rating,
			RatingText: entities.FormatRating(f.Rating),
			Feedback:   f.Message,
			CreatedAt:  f.CreatedAt,
		})
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"course_key": courseKey,
		"feedback":   items,
		"count":      len(items),
	})
}

// PublicFeedbackCacheKeys keys the shared cache of GetCourseFeedback on the
// same normalized course key that submissions and invalidation use
func PublicFeedbackCacheKeys(r *http.Request) (key, generationKey string) {
	courseKey := courseKeyFromPath(r)
	if courseKey == "" {
		return "", ""
	}
	return services.PublicFeedbackCacheKey(courseKey), services.PublicFeedbackGenerationKey(courseKey)
}

func courseKeyFromPath(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("courseKey"))
}

func (h *FeedbackHandler) allowRequest(ctx context.Context, key string) (bool, time.Duration) {
	if h.cache == nil {
		return h.local.allow(key, feedbackRateLimit, feedbackRateWindow)
	}

	state := rateLimitState{}
	if data, err := h.cache.Get(ctx, key); err == nil {
		_ = json.Unmarshal(data, &state)
	}

	if state.Count >= feedbackRateLimit {
		return false, feedbackRateWindow
	}

	state.Count++
	data, _ := json.Marshal(state)
	if err := h.cache.Set(ctx, key, data, int(feedbackRateWindow.Seconds())); err != nil {
		return h.local.allow(key, feedbackRateLimit, feedbackRateWindow)
	}
	return true, feedbackRateWindow
}

type rateLimitState struct {
	Count int `json:"count"`
}

type localRateLimiter struct {
	mu     sync.Mutex
	states map[string]*localRateState
}

type localRateState struct {
	count   int
	resetAt time.Time
}

func newLocalRateLimiter() *localRateLimiter {
	return &localRateLimiter{
		states: make(map[string]*localRateState),
	}
}

func (l *localRateLimiter) allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[key]
	if !ok || now.After(state.resetAt) {
		state = &localRateState{resetAt: now.Add(window)}
		l.states[key] = state
	}

	if state.count >= limit {
		retryAfter := time.Until(state.resetAt)
		if retryAfter < 0 {
			retryAfter = window
		}
		return false, retryAfter
	}

	state.count++
	return true, window
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
