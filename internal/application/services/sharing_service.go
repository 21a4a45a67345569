package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

// SharingService manages cross-course sharing of feedback and serves the
// public view of a course's feedback.
type SharingService struct {
	feedbacks repositories.FeedbackRepository
	links     repositories.SharingLinkRepository
	events    providers.EventBus
	audit     providers.AuditLog
}

// NewSharingService creates a new sharing service. events and audit may be nil.
func NewSharingService(
	feedbacks repositories.FeedbackRepository,
	links repositories.SharingLinkRepository,
	events providers.EventBus,
	audit providers.AuditLog,
) *SharingService {
	return &SharingService{
		feedbacks: feedbacks,
		links:     links,
		events:    events,
		audit:     audit,
	}
}

// AddLink shares a record with courseKey
func (s *SharingService) AddLink(ctx context.Context, feedbackID, courseKey string) (*entities.SharingLink, error) {
	courseKey = strings.TrimSpace(courseKey)
	if err := validateLinkArgs(feedbackID, courseKey); err != nil {
		return nil, err
	}

	link, err := s.links.AddLink(ctx, feedbackID, courseKey)
	if err != nil {
		return nil, err
	}

	s.linkChanged(ctx, entities.FeedbackEventLinkAdded, providers.AuditActionLinkAdded, feedbackID, courseKey)
	return link, nil
}

// RemoveLink stops sharing a record with courseKey. Removing a link that
// does not exist succeeds.
func (s *SharingService) RemoveLink(ctx context.Context, feedbackID, courseKey string) error {
	courseKey = strings.TrimSpace(courseKey)
	if err := validateLinkArgs(feedbackID, courseKey); err != nil {
		return err
	}

	if err := s.links.RemoveLink(ctx, feedbackID, courseKey); err != nil {
		return err
	}

	s.linkChanged(ctx, entities.FeedbackEventLinkRemoved, providers.AuditActionLinkRemoved, feedbackID, courseKey)
	return nil
}

// ListLinksFor returns the course keys a record is shared with
func (s *SharingService) ListLinksFor(ctx context.Context, feedbackID string) ([]string, error) {
	if _, err := uuid.Parse(feedbackID); err != nil {
		return nil, apperrors.NewValidationError("invalid feedback id")
	}
	if _, err := s.feedbacks.GetByID(ctx, feedbackID); err != nil {
		return nil, err
	}
	return s.links.ListLinksFor(ctx, feedbackID)
}

// SetLinks reconciles the record's links with courseKeys and returns the
// resulting set.
func (s *SharingService) SetLinks(ctx context.Context, feedbackID string, courseKeys []string) ([]string, error) {
	current, err := s.ListLinksFor(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	desired := make(map[string]struct{}, len(courseKeys))
	for _, key := range courseKeys {
		if key = strings.TrimSpace(key); key != "" {
			desired[key] = struct{}{}
		}
	}

	existing := make(map[string]struct{}, len(current))
	for _, key := range current {
		existing[key] = struct{}{}
		if _, keep := desired[key]; keep {
			continue
		}
		if err := s.RemoveLink(ctx, feedbackID, key); err != nil {
			return nil, err
		}
	}

	toAdd := make([]string, 0, len(desired))
	for key := range desired {
		if _, ok := existing[key]; !ok {
			toAdd = append(toAdd, key)
		}
	}
	sort.Strings(toAdd)

	for _, key := range toAdd {
		// A concurrent edit may have created the link already.
		if _, err := s.AddLink(ctx, feedbackID, key); err != nil && !apperrors.IsConflict(err) {
			return nil, err
		}
	}

	return s.links.ListLinksFor(ctx, feedbackID)
}

// ResolveEffectiveFeedback returns the approved, consented feedback visible
// under courseKey: its own records plus every record shared with it.
func (s *SharingService) ResolveEffectiveFeedback(ctx context.Context, courseKey string) ([]*entities.Feedback, error) {
	ctx, span := observability.StartSpan(ctx, "SharingService.ResolveEffectiveFeedback")
	defer span.End()

	if strings.TrimSpace(courseKey) == "" {
		return nil, apperrors.NewValidationError("course key is required")
	}

	feedbacks, err := s.feedbacks.FindEffective(ctx, courseKey)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	visible := make([]*entities.Feedback, 0, len(feedbacks))
	for _, f := range feedbacks {
		if f.PubliclyVisible() {
			visible = append(visible, f)
		}
	}
	return visible, nil
}

func (s *SharingService) linkChanged(ctx context.Context, eventType entities.FeedbackEventType, action, feedbackID, courseKey string) {
	publishEvent(ctx, s.events, eventType, feedbackID, courseKey)
	recordAudit(ctx, s.audit, action, map[string]string{
		"feedback_id": feedbackID,
		"course_key":  courseKey,
	})
}

func validateLinkArgs(feedbackID, courseKey string) error {
	if _, err := uuid.Parse(feedbackID); err != nil {
		return apperrors.NewValidationError("invalid feedback id")
	}
	if courseKey == "" {
		return apperrors.NewValidationError("course key is required")
	}
	return nil
}
