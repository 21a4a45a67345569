package routes

import (
	"net/http"

	"github.com/zatekoja/coursefeedback/backend/internal/api/handlers"
	"github.com/zatekoja/coursefeedback/backend/internal/api/middleware"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	healthHandler   *handlers.HealthHandler
	feedbackHandler *handlers.FeedbackHandler
	adminHandler    *handlers.AdminHandler

	cacheMiddleware *middleware.CacheMiddleware
	allowedOrigins  []string
	metrics         *observability.Metrics
}

// NewRouter creates a new router. cacheMiddleware may be nil.
func NewRouter(
	healthHandler *handlers.HealthHandler,
	feedbackHandler *handlers.FeedbackHandler,
	adminHandler *handlers.AdminHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		healthHandler:   healthHandler,
		feedbackHandler: feedbackHandler,
		adminHandler:    adminHandler,
		cacheMiddleware: cacheMiddleware,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Live)
	r.mux.HandleFunc("GET /ready", r.healthHandler.Ready)

	// Learner endpoints
	r.mux.HandleFunc("POST /api/courses/{courseKey}/feedback", r.feedbackHandler.SubmitFeedback)
	r.mux.Handle("GET /api/courses/{courseKey}/feedback", r.public(http.HandlerFunc(r.feedbackHandler.GetCourseFeedback)))

	// Review and export
	r.mux.HandleFunc("GET /api/admin/feedback", r.adminHandler.ListFeedback)
	r.mux.HandleFunc("GET /api/admin/feedback/export", r.adminHandler.ExportFiltered)
	r.mux.HandleFunc("POST /api/admin/feedback/actions/toggle-approval", r.adminHandler.ToggleApproval)
	r.mux.HandleFunc("POST /api/admin/feedback/actions/export", r.adminHandler.ExportSelected)
	r.mux.HandleFunc("PUT /api/admin/feedback/{id}/approval", r.adminHandler.SetApproval)

	// Sharing links
	r.mux.HandleFunc("GET /api/admin/feedback/{id}/links", r.adminHandler.ListLinks)
	r.mux.HandleFunc("POST /api/admin/feedback/{id}/links", r.adminHandler.AddLink)
	r.mux.HandleFunc("PUT /api/admin/feedback/{id}/links", r.adminHandler.SetLinks)
	r.mux.HandleFunc("DELETE /api/admin/feedback/{id}/links/{courseKey}", r.adminHandler.RemoveLink)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.CacheControl(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

// public wraps the cacheable public read. The shared cache sits inside the
// mux so the course key path value is available to the cache key.
func (r *Router) public(h http.Handler) http.Handler {
	if r.cacheMiddleware != nil {
		h = r.cacheMiddleware.Middleware(h)
	}
	h = middleware.ETag(h)
	return middleware.Compression(h)
}
