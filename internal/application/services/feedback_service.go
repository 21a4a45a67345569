package services

import (
	"context"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

// SaveResult reports the outcome of a submission. Submissions never fail
// towards the learner, so the error is carried here instead of returned.
type SaveResult struct {
	Feedback *entities.Feedback
	Saved    bool
	Err      error
}

// FeedbackService handles learner feedback submissions.
type FeedbackService struct {
	repo   repositories.FeedbackRepository
	events providers.EventBus
}

// NewFeedbackService creates a new feedback service. events may be nil.
func NewFeedbackService(repo repositories.FeedbackRepository, events providers.EventBus) *FeedbackService {
	return &FeedbackService{repo: repo, events: events}
}

// Submit creates or updates the record for (course, user, block). Store
// failures are logged and reported in the result, never returned.
func (s *FeedbackService) Submit(ctx context.Context, params repositories.UpsertFeedbackParams) SaveResult {
	ctx, span := observability.StartSpan(ctx, "FeedbackService.Submit")
	defer span.End()

	feedback, err := s.repo.Upsert(ctx, params)
	if err != nil {
		observability.RecordError(span, err)
		observability.LoggerFromContext(ctx).Error().
			Err(err).
			Str("course_key", params.CourseKey).
			Str("user_id", params.UserID).
			Str("block_id", params.BlockID).
			Msg("failed to save feedback")
		return SaveResult{Err: err}
	}

	publishEvent(ctx, s.events, entities.FeedbackEventSubmitted, feedback.ID, feedback.CourseKey)
	return SaveResult{Feedback: feedback, Saved: true}
}
