package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

const (
	feedbackTable = "course_feedback"
	sharesTable   = "course_feedback_shares"

	// conflict target of the natural key
	feedbackNaturalKey = "course_key, user_id, block_id"
)

var feedbackColumns = []interface{}{
	"id", "course_key", "user_id", "block_id", "block_name", "rating",
	"feedback", "consent_to_share", "is_approved", "created_at", "modified_at",
}

// FeedbackAdapter implements feedback persistence in Postgres
type FeedbackAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

var _ repositories.FeedbackRepository = (*FeedbackAdapter)(nil)

// NewFeedbackAdapter creates a new feedback adapter
func NewFeedbackAdapter(client *postgres.Client) *FeedbackAdapter {
	return &FeedbackAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upsert creates or updates the record for (course, user, block) in one
// statement. Rating and message are only overwritten when supplied; block
// name and consent are always overwritten. Approval and created_at are
// never touched by a submission.
func (a *FeedbackAdapter) Upsert(ctx context.Context, params repositories.UpsertFeedbackParams) (*entities.Feedback, error) {
	if params.CourseKey == "" || params.UserID == "" || params.BlockID == "" {
		return nil, apperrors.NewValidationError("course_key, user_id and block_id are required")
	}

	now := a.now()
	rating := nullInt(params.Rating)
	if !rating.Valid {
		rating = sql.NullInt64{Int64: 0, Valid: true}
	}

	insert := goqu.Record{
		"id":               uuid.New().String(),
		"course_key":       params.CourseKey,
		"user_id":          params.UserID,
		"block_id":         params.BlockID,
		"block_name":       nullString(params.BlockName),
		"rating":           rating,
		"feedback":         nullString(params.Message),
		"consent_to_share": params.ConsentToShare,
		"is_approved":      false,
		"created_at":       now,
		"modified_at":      now,
	}

	update := goqu.Record{
		"rating":           goqu.L("COALESCE(?, ?)", nullInt(params.Rating), goqu.I(feedbackTable+".rating")),
		"feedback":         goqu.L("COALESCE(?, ?)", nullString(params.Message), goqu.I(feedbackTable+".feedback")),
		"block_name":       goqu.L("EXCLUDED.block_name"),
		"consent_to_share": goqu.L("EXCLUDED.consent_to_share"),
		"modified_at":      goqu.L("EXCLUDED.modified_at"),
	}

	query, args, err := a.db.Insert(feedbackTable).
		Prepared(true).
		Rows(insert).
		OnConflict(goqu.DoUpdate(feedbackNaturalKey, update)).
		Returning(feedbackColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build feedback upsert query", err)
	}

	feedback := &entities.Feedback{}
	if err := a.client.DBX().QueryRowxContext(ctx, query, args...).StructScan(feedback); err != nil {
		return nil, apperrors.NewInternalError("failed to upsert feedback", err)
	}

	return feedback, nil
}

// GetByID retrieves a feedback record by ID
func (a *FeedbackAdapter) GetByID(ctx context.Context, id string) (*entities.Feedback, error) {
	query, args, err := a.db.From(feedbackTable).
		Prepared(true).
		Select(feedbackColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	feedback := &entities.Feedback{}
	err = a.client.DBX().GetContext(ctx, feedback, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("feedback with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get feedback", err)
	}

	return feedback, nil
}

// Find lists feedback records matching the filter, oldest first
func (a *FeedbackAdapter) Find(ctx context.Context, filter repositories.FeedbackFilter) ([]*entities.Feedback, error) {
	ds := a.db.From(feedbackTable).
		Prepared(true).
		Select(feedbackColumns...).
		Where(filterExpressions(filter)...).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	feedbacks := make([]*entities.Feedback, 0)
	if err := a.client.DBX().SelectContext(ctx, &feedbacks, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list feedback", err)
	}

	return feedbacks, nil
}

// SetApproval sets the approval flag and advances modified_at
func (a *FeedbackAdapter) SetApproval(ctx context.Context, id string, approved bool) error {
	query, args, err := a.db.Update(feedbackTable).
		Prepared(true).
		Set(goqu.Record{
			"is_approved": approved,
			"modified_at": a.now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build approval query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update feedback approval", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("feedback with id %s not found", id))
	}

	return nil
}

// ToggleApproval negates the approval flag in a single statement and returns
// the updated record. Concurrent toggles of the same record serialize on the
// row lock, so none is lost.
func (a *FeedbackAdapter) ToggleApproval(ctx context.Context, id string) (*entities.Feedback, error) {
	query, args, err := a.db.Update(feedbackTable).
		Prepared(true).
		Set(goqu.Record{
			"is_approved": goqu.L("NOT ?", goqu.I("is_approved")),
			"modified_at": a.now(),
		}).
		Where(goqu.Ex{"id": id}).
		Returning(feedbackColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build approval toggle query", err)
	}

	feedback := &entities.Feedback{}
	err = a.client.DBX().QueryRowxContext(ctx, query, args...).StructScan(feedback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("feedback with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to toggle feedback approval", err)
	}

	return feedback, nil
}

// FindEffective returns every approved, consented record whose own course
// key matches or that is shared with courseKey. The visibility predicate is
// part of the query so no caller can forget it.
func (a *FeedbackAdapter) FindEffective(ctx context.Context, courseKey string) ([]*entities.Feedback, error) {
	shared := a.db.From(sharesTable).
		Select("feedback_id").
		Where(goqu.Ex{"course_key": courseKey})

	query, args, err := a.db.From(feedbackTable).
		Prepared(true).
		Select(feedbackColumns...).
		Where(
			goqu.Ex{"is_approved": true, "consent_to_share": true},
			goqu.Or(
				goqu.Ex{"course_key": courseKey},
				goqu.I("id").In(shared),
			),
		).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build effective feedback query", err)
	}

	feedbacks := make([]*entities.Feedback, 0)
	if err := a.client.DBX().SelectContext(ctx, &feedbacks, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to resolve effective feedback", err)
	}

	return feedbacks, nil
}

func filterExpressions(filter repositories.FeedbackFilter) []exp.Expression {
	var exprs []exp.Expression

	if len(filter.IDs) > 0 {
		exprs = append(exprs, goqu.Ex{"id": filter.IDs})
	}
	if filter.CourseKey != "" {
		exprs = append(exprs, goqu.Ex{"course_key": filter.CourseKey})
	}
	if filter.UserID != "" {
		exprs = append(exprs, goqu.Ex{"user_id": filter.UserID})
	}
	if filter.UserQuery != "" {
		exprs = append(exprs, goqu.C("user_id").ILike("%"+escapeLike(filter.UserQuery)+"%"))
	}
	if filter.IsApproved != nil {
		exprs = append(exprs, goqu.Ex{"is_approved": *filter.IsApproved})
	}
	if filter.ConsentToShare != nil {
		exprs = append(exprs, goqu.Ex{"consent_to_share": *filter.ConsentToShare})
	}

	return exprs
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern (backslash is the
// Postgres default escape character)
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
