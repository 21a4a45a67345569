package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// SharingLinkAdapter implements SharingLinkRepository
type SharingLinkAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

var _ repositories.SharingLinkRepository = (*SharingLinkAdapter)(nil)

// NewSharingLinkAdapter creates a new sharing link adapter
func NewSharingLinkAdapter(client *postgres.Client) *SharingLinkAdapter {
	return &SharingLinkAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddLink shares a feedback record with another course key
func (a *SharingLinkAdapter) AddLink(ctx context.Context, feedbackID, courseKey string) (*entities.SharingLink, error) {
	link := &entities.SharingLink{
		ID:         uuid.New().String(),
		FeedbackID: feedbackID,
		CourseKey:  courseKey,
		CreatedAt:  a.now(),
	}

	query, args, err := a.db.Insert(sharesTable).
		Prepared(true).
		Rows(goqu.Record{
			"id":          link.ID,
			"feedback_id": link.FeedbackID,
			"course_key":  link.CourseKey,
			"created_at":  link.CreatedAt,
		}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return nil, apperrors.NewDuplicateLinkError(feedbackID, courseKey)
			case pqForeignKeyViolation:
				return nil, apperrors.NewNotFoundError(fmt.Sprintf("feedback with id %s not found", feedbackID))
			}
		}
		return nil, apperrors.NewInternalError("failed to create sharing link", err)
	}

	return link, nil
}

// RemoveLink deletes the link if present
func (a *SharingLinkAdapter) RemoveLink(ctx context.Context, feedbackID, courseKey string) error {
	query, args, err := a.db.Delete(sharesTable).
		Prepared(true).
		Where(goqu.Ex{"feedback_id": feedbackID, "course_key": courseKey}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to remove sharing link", err)
	}

	return nil
}

// ListLinksFor returns the course keys a record is shared with
func (a *SharingLinkAdapter) ListLinksFor(ctx context.Context, feedbackID string) ([]string, error) {
	query, args, err := a.db.From(sharesTable).
		Prepared(true).
		Select("course_key").
		Where(goqu.Ex{"feedback_id": feedbackID}).
		Order(goqu.I("course_key").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	courseKeys := make([]string, 0)
	if err := a.client.DBX().SelectContext(ctx, &courseKeys, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list sharing links", err)
	}

	return courseKeys, nil
}
