package repositories

import (
	"context"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
)

// UpsertFeedbackParams carries one submission. Nil Rating or Message leaves the
// stored value untouched; BlockName and ConsentToShare always overwrite.
type UpsertFeedbackParams struct {
	CourseKey      string
	UserID         string
	BlockID        string
	BlockName      *string
	Rating         *int
	Message        *string
	ConsentToShare bool
}

// FeedbackFilter selects feedback records. Zero values mean "no constraint".
type FeedbackFilter struct {
	IDs            []string
	CourseKey      string
	UserID         string
	UserQuery      string
	IsApproved     *bool
	ConsentToShare *bool
	Limit          int
	Offset         int
}

// FeedbackRepository defines the interface for feedback persistence
type FeedbackRepository interface {
	// Upsert creates or updates the record for (course, user, block) atomically
	Upsert(ctx context.Context, params UpsertFeedbackParams) (*entities.Feedback, error)

	// GetByID retrieves a record by surrogate id
	GetByID(ctx context.Context, id string) (*entities.Feedback, error)

	// Find lists records matching the filter, oldest first
	Find(ctx context.Context, filter FeedbackFilter) ([]*entities.Feedback, error)

	// SetApproval sets the approval flag and advances modified_at
	SetApproval(ctx context.Context, id string, approved bool) error

	// ToggleApproval atomically negates the approval flag and returns the updated record
	ToggleApproval(ctx context.Context, id string) (*entities.Feedback, error)

	// FindEffective returns approved, consented records owned by or shared with courseKey
	FindEffective(ctx context.Context, courseKey string) ([]*entities.Feedback, error)
}
