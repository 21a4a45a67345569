package repositories

import (
	"context"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
)

// SharingLinkRepository defines the interface for feedback sharing links
type SharingLinkRepository interface {
	// AddLink fails with a conflict error when the pair already exists
	AddLink(ctx context.Context, feedbackID, courseKey string) (*entities.SharingLink, error)

	// RemoveLink is a no-op when the pair does not exist
	RemoveLink(ctx context.Context, feedbackID, courseKey string) error

	// ListLinksFor returns the target course keys of a record, sorted
	ListLinksFor(ctx context.Context, feedbackID string) ([]string, error)
}
