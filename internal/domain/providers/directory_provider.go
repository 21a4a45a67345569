package providers

import (
	"context"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
)

// CourseDirectory resolves course keys to human-readable names
type CourseDirectory interface {
	GetDisplayName(ctx context.Context, courseKey string) (string, error)

	// GetDisplayNames resolves several keys; unknown or unreachable keys are absent from the result
	GetDisplayNames(ctx context.Context, courseKeys []string) (map[string]string, error)
}

// UserDirectory resolves user ids to profiles
type UserDirectory interface {
	GetProfile(ctx context.Context, userID string) (*entities.UserProfile, error)

	// GetProfiles resolves several ids; unknown or unreachable ids are absent from the result
	GetProfiles(ctx context.Context, userIDs []string) (map[string]*entities.UserProfile, error)
}
