package services

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

const enrichmentBatchWait = 2 * time.Millisecond

// Enricher resolves course names and learner profiles for report rows.
// Each call gets fresh loaders so lookups are batched and de-duplicated per
// request, never shared across requests.
type Enricher struct {
	courses providers.CourseDirectory
	users   providers.UserDirectory
}

// NewEnricher creates a new enricher
func NewEnricher(courses providers.CourseDirectory, users providers.UserDirectory) *Enricher {
	return &Enricher{courses: courses, users: users}
}

type directoryLoaders struct {
	courses *dataloader.Loader[string, string]
	users   *dataloader.Loader[string, *entities.UserProfile]
}

func (e *Enricher) newLoaders() *directoryLoaders {
	return &directoryLoaders{
		courses: dataloader.NewBatchedLoader(func(ctx context.Context, keys []string) []*dataloader.Result[string] {
			results := make([]*dataloader.Result[string], len(keys))
			names, err := e.courses.GetDisplayNames(ctx, keys)

			for i, key := range keys {
				if name, ok := names[key]; ok {
					results[i] = &dataloader.Result[string]{Data: name}
				} else if err != nil {
					results[i] = &dataloader.Result[string]{Error: err}
				} else {
					results[i] = &dataloader.Result[string]{Error: fmt.Errorf("course %s not found", key)}
				}
			}
			return results
		}, dataloader.WithWait[string, string](enrichmentBatchWait)),
		users: dataloader.NewBatchedLoader(func(ctx context.Context, keys []string) []*dataloader.Result[*entities.UserProfile] {
			results := make([]*dataloader.Result[*entities.UserProfile], len(keys))
			profiles, err := e.users.GetProfiles(ctx, keys)

			for i, key := range keys {
				if profile, ok := profiles[key]; ok {
					results[i] = &dataloader.Result[*entities.UserProfile]{Data: profile}
				} else if err != nil {
					results[i] = &dataloader.Result[*entities.UserProfile]{Error: err}
				} else {
					results[i] = &dataloader.Result[*entities.UserProfile]{Error: fmt.Errorf("user %s not found", key)}
				}
			}
			return results
		}, dataloader.WithWait[string, *entities.UserProfile](enrichmentBatchWait)),
	}
}

// Enrich builds one report row per record. A failed lookup blanks the
// affected fields and is logged; it never fails the batch.
func (e *Enricher) Enrich(ctx context.Context, feedbacks []*entities.Feedback) []*entities.FeedbackReportRow {
	rows := make([]*entities.FeedbackReportRow, len(feedbacks))
	if len(feedbacks) == 0 {
		return rows
	}

	loaders := e.newLoaders()
	courseThunks := make([]dataloader.Thunk[string], len(feedbacks))
	userThunks := make([]dataloader.Thunk[*entities.UserProfile], len(feedbacks))
	for i, f := range feedbacks {
		courseThunks[i] = loaders.courses.Load(ctx, f.CourseKey)
		userThunks[i] = loaders.users.Load(ctx, f.UserID)
	}

	logger := observability.LoggerFromContext(ctx)
	for i, f := range feedbacks {
		row := &entities.FeedbackReportRow{Feedback: f}

		courseName, err := courseThunks[i]()
		if err != nil {
			logger.Warn().Err(err).Str("course_key", f.CourseKey).Msg("course name lookup failed")
		} else {
			row.CourseName = courseName
		}

		profile, err := userThunks[i]()
		if err != nil {
			logger.Warn().Err(err).Str("user_id", f.UserID).Msg("user profile lookup failed")
		} else {
			row.UserName = profile.DisplayName()
			if profile != nil {
				row.Email = profile.Email
				row.MobileNumber = profile.MobileNumber
			}
		}

		rows[i] = row
	}

	return rows
}
