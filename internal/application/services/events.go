package services

import (
	"context"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

// publishEvent announces a committed change on the feedback updates channel.
// Publishing is best effort; the mutation has already been committed.
func publishEvent(ctx context.Context, bus providers.EventBus, eventType entities.FeedbackEventType, feedbackID, courseKey string) {
	if bus == nil {
		return
	}

	event := entities.NewFeedbackEvent(eventType, feedbackID, courseKey)
	if err := bus.Publish(ctx, providers.EventChannelFeedbackUpdates, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().
			Err(err).
			Str("channel", providers.EventChannelFeedbackUpdates).
			Str("feedback_id", feedbackID).
			Msg("failed to publish feedback event")
	}
}

func recordAudit(ctx context.Context, audit providers.AuditLog, action string, fields map[string]string) {
	if audit == nil {
		return
	}
	audit.Record(ctx, action, fields)
}
