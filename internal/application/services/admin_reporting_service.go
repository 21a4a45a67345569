package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

// AdminReportingService backs the staff review screens: listing, bulk
// approval and report export.
type AdminReportingService struct {
	feedbacks repositories.FeedbackRepository
	enricher  *Enricher
	location  *time.Location
	events    providers.EventBus
	audit     providers.AuditLog
}

// NewAdminReportingService creates a new admin reporting service. Report
// timestamps are rendered in location (UTC when nil).
func NewAdminReportingService(
	feedbacks repositories.FeedbackRepository,
	enricher *Enricher,
	location *time.Location,
	events providers.EventBus,
	audit providers.AuditLog,
) *AdminReportingService {
	if location == nil {
		location = time.UTC
	}
	return &AdminReportingService{
		feedbacks: feedbacks,
		enricher:  enricher,
		location:  location,
		events:    events,
		audit:     audit,
	}
}

// ListForReview returns matching records with directory details attached
func (s *AdminReportingService) ListForReview(ctx context.Context, filter repositories.FeedbackFilter) ([]*entities.FeedbackReportRow, error) {
	ctx, span := observability.StartSpan(ctx, "AdminReportingService.ListForReview")
	defer span.End()

	feedbacks, err := s.feedbacks.Find(ctx, filter)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return s.enricher.Enrich(ctx, feedbacks), nil
}

// ToggleApproval flips the approval flag of each distinct id. Records that
// cannot be toggled are logged and skipped; the number actually toggled is
// returned.
func (s *AdminReportingService) ToggleApproval(ctx context.Context, ids []string) (int, error) {
	logger := observability.LoggerFromContext(ctx)
	toggled := 0

	for _, id := range uniqueIDs(ids) {
		if _, err := uuid.Parse(id); err != nil {
			logger.Warn().Str("feedback_id", id).Msg("skipping malformed feedback id")
			continue
		}

		feedback, err := s.feedbacks.ToggleApproval(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				logger.Warn().Str("feedback_id", id).Msg("skipping unknown feedback during approval toggle")
			} else {
				logger.Error().Err(err).Str("feedback_id", id).Msg("failed to toggle feedback approval")
			}
			continue
		}

		toggled++
		s.approvalChanged(ctx, feedback.ID, feedback.CourseKey, feedback.IsApproved)
	}

	return toggled, nil
}

// SetApproval forces the approval flag of one record
func (s *AdminReportingService) SetApproval(ctx context.Context, id string, approved bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewValidationError("invalid feedback id")
	}

	feedback, err := s.feedbacks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.feedbacks.SetApproval(ctx, id, approved); err != nil {
		return err
	}

	s.approvalChanged(ctx, id, feedback.CourseKey, approved)
	return nil
}

func (s *AdminReportingService) approvalChanged(ctx context.Context, id, courseKey string, approved bool) {
	publishEvent(ctx, s.events, entities.FeedbackEventApprovalToggled, id, courseKey)
	recordAudit(ctx, s.audit, providers.AuditActionApprovalToggled, map[string]string{
		"feedback_id": id,
		"course_key":  courseKey,
		"approved":    strconv.FormatBool(approved),
	})
}

// ExportCSV renders rows as the Feedbacks.csv report
func (s *AdminReportingService) ExportCSV(ctx context.Context, rows []*entities.FeedbackReportRow) ([]byte, error) {
	data, err := renderCSV(rows, s.location)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render csv report", err)
	}
	return data, nil
}

// ExportXLSX renders rows as the Feedbacks.xlsx report
func (s *AdminReportingService) ExportXLSX(ctx context.Context, rows []*entities.FeedbackReportRow) ([]byte, error) {
	data, err := renderXLSX(rows, s.location)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render xlsx report", err)
	}
	return data, nil
}

// ExportSelected renders the records with the given ids. Malformed and
// unknown ids are left out of the report.
func (s *AdminReportingService) ExportSelected(ctx context.Context, ids []string, format ExportFormat) (*ExportFile, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}

	var rows []*entities.FeedbackReportRow
	if len(valid) > 0 {
		var err error
		rows, err = s.ListForReview(ctx, repositories.FeedbackFilter{IDs: valid})
		if err != nil {
			return nil, err
		}
	}

	return s.render(ctx, rows, format)
}

// ExportFiltered renders every record matching filter
func (s *AdminReportingService) ExportFiltered(ctx context.Context, filter repositories.FeedbackFilter, format ExportFormat) (*ExportFile, error) {
	rows, err := s.ListForReview(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, rows, format)
}

func (s *AdminReportingService) render(ctx context.Context, rows []*entities.FeedbackReportRow, format ExportFormat) (*ExportFile, error) {
	var (
		data []byte
		err  error
	)

	switch format {
	case ExportFormatCSV:
		data, err = s.ExportCSV(ctx, rows)
	case ExportFormatXLSX:
		data, err = s.ExportXLSX(ctx, rows)
	default:
		return nil, apperrors.NewValidationError("unsupported export format " + string(format))
	}
	if err != nil {
		return nil, err
	}

	return &ExportFile{
		Filename:    format.Filename(),
		ContentType: format.ContentType(),
		Data:        data,
		Rows:        len(rows),
	}, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
