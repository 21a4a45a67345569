package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/zatekoja/coursefeedback/backend/internal/application/services"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ReviewService defines the administration operations used by the handler
type ReviewService interface {
	ListForReview(ctx context.Context, filter repositories.FeedbackFilter) ([]*entities.FeedbackReportRow, error)
	ToggleApproval(ctx context.Context, ids []string) (int, error)
	SetApproval(ctx context.Context, id string, approved bool) error
	ExportSelected(ctx context.Context, ids []string, format services.ExportFormat) (*services.ExportFile, error)
	ExportFiltered(ctx context.Context, filter repositories.FeedbackFilter, format services.ExportFormat) (*services.ExportFile, error)
}

// LinkService defines the sharing link operations used by the handler
type LinkService interface {
	AddLink(ctx context.Context, feedbackID, courseKey string) (*entities.SharingLink, error)
	RemoveLink(ctx context.Context, feedbackID, courseKey string) error
	ListLinksFor(ctx context.Context, feedbackID string) ([]string, error)
	SetLinks(ctx context.Context, feedbackID string, courseKeys []string) ([]string, error)
}

// AdminHandler handles feedback review, export and sharing administration
type AdminHandler struct {
	review  ReviewService
	links   LinkService
	metrics *observability.Metrics
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(review ReviewService, links LinkService, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{
		review:  review,
		links:   links,
		metrics: metrics,
	}
}

type reviewRow struct {
	*entities.Feedback
	RatingText   string `json:"rating_display"`
	CourseName   string `json:"course_name"`
	UserName     string `json:"user_name"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type approvalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type exportRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
	Format string   `json:"format" validate:"omitempty,oneof=csv xlsx"`
}

type addLinkRequest struct {
	CourseKey string `json:"course_key" validate:"required,max=255"`
}

type setLinksRequest struct {
	CourseKeys []string `json:"course_keys" validate:"dive,required,max=255"`
}

// ListFeedback handles GET /api/admin/feedback
func (h *AdminHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	rows, err := h.review.ListForReview(r.Context(), filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	items := make([]reviewRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, reviewRow{
			Feedback:     row.Feedback,
			RatingText:   entities.FormatRating(row.Feedback.Rating),
			CourseName:   row.CourseName,
			UserName:     row.UserName,
			Email:        row.Email,
			MobileNumber: row.MobileNumber,
		})
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"feedback": items,
		"count":    len(items),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// ToggleApproval handles POST /api/admin/feedback/actions/toggle-approval
func (h *AdminHandler) ToggleApproval(w http.ResponseWriter, r *http.Request) {
	var payload idsRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	toggled, err := h.review.ToggleApproval(r.Context(), payload.IDs)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{
		"toggled": toggled,
	})
}

// SetApproval handles PUT /api/admin/feedback/{id}/approval
func (h *AdminHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var payload approvalRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	id := r.PathValue("id")
	if err := h.review.SetApproval(r.Context(), id, *payload.Approved); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"approved": *payload.Approved,
	})
}

// ExportSelected handles POST /api/admin/feedback/actions/export
func (h *AdminHandler) ExportSelected(w http.ResponseWriter, r *http.Request) {
	var payload exportRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	format, _ := services.ParseExportFormat(payload.Format)
	file, err := h.review.ExportSelected(r.Context(), payload.IDs, format)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	h.serveExport(w, r, format, file)
}

// ExportFiltered handles GET /api/admin/feedback/export
func (h *AdminHandler) ExportFiltered(w http.ResponseWriter, r *http.Request) {
	format, ok := services.ParseExportFormat(r.URL.Query().Get("format"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	// the report covers every match unless a limit was asked for
	if r.URL.Query().Get("limit") == "" {
		filter.Limit = 0
	}

	file, err := h.review.ExportFiltered(r.Context(), filter, format)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	h.serveExport(w, r, format, file)
}

func (h *AdminHandler) serveExport(w http.ResponseWriter, r *http.Request, format services.ExportFormat, file *services.ExportFile) {
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	observability.RecordExport(r.Context(), h.metrics, string(format), file.Rows)
	if _, err := w.Write(file.Data); err != nil {
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Str("format", string(format)).Msg("failed to write export")
	}
}

// ListLinks handles GET /api/admin/feedback/{id}/links
func (h *AdminHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	keys, err := h.links.ListLinksFor(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"feedback_id": id,
		"course_keys": keys,
	})
}

// AddLink handles POST /api/admin/feedback/{id}/links
func (h *AdminHandler) AddLink(w http.ResponseWriter, r *http.Request) {
	var payload addLinkRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	link, err := h.links.AddLink(r.Context(), r.PathValue("id"), payload.CourseKey)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, link)
}

// SetLinks handles PUT /api/admin/feedback/{id}/links
func (h *AdminHandler) SetLinks(w http.ResponseWriter, r *http.Request) {
	var payload setLinksRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	id := r.PathValue("id")
	keys, err := h.links.SetLinks(r.Context(), id, payload.CourseKeys)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"feedback_id": id,
		"course_keys": keys,
	})
}

// RemoveLink handles DELETE /api/admin/feedback/{id}/links/{courseKey}
func (h *AdminHandler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	if err := h.links.RemoveLink(r.Context(), r.PathValue("id"), r.PathValue("courseKey")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(w http.ResponseWriter, r *http.Request) (repositories.FeedbackFilter, bool) {
	q := r.URL.Query()
	filter := repositories.FeedbackFilter{
		CourseKey: strings.TrimSpace(q.Get("course_key")),
		UserID:    strings.TrimSpace(q.Get("user_id")),
		UserQuery: strings.TrimSpace(q.Get("user")),
		Limit:     defaultListLimit,
	}

	var ok bool
	if filter.IsApproved, ok = parseOptionalBool(q.Get("approved")); !ok {
		respondWithError(w, http.StatusBadRequest, "approved must be a boolean")
		return filter, false
	}
	if filter.ConsentToShare, ok = parseOptionalBool(q.Get("consent")); !ok {
		respondWithError(w, http.StatusBadRequest, "consent must be a boolean")
		return filter, false
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return filter, false
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			respondWithError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return filter, false
		}
		filter.Offset = offset
	}

	return filter, true
}

func parseOptionalBool(v string) (*bool, bool) {
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, false
	}
	return &b, true
}
