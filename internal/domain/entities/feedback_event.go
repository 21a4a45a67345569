package entities

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackEventType represents the kind of change published for a feedback record
type FeedbackEventType string

const (
	FeedbackEventSubmitted       FeedbackEventType = "submitted"
	FeedbackEventApprovalToggled FeedbackEventType = "approval_toggled"
	FeedbackEventLinkAdded       FeedbackEventType = "link_added"
	FeedbackEventLinkRemoved     FeedbackEventType = "link_removed"
)

// FeedbackEvent is published on the event bus after a successful mutation
type FeedbackEvent struct {
	ID         string            `json:"id"`
	Type       FeedbackEventType `json:"type"`
	FeedbackID string            `json:"feedback_id"`
	CourseKey  string            `json:"course_key"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewFeedbackEvent creates a new feedback event
func NewFeedbackEvent(eventType FeedbackEventType, feedbackID, courseKey string) *FeedbackEvent {
	return &FeedbackEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		FeedbackID: feedbackID,
		CourseKey:  courseKey,
		Timestamp:  time.Now().UTC(),
	}
}
