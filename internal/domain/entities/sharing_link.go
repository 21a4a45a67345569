package entities

import "time"

// SharingLink makes a feedback record also appear under another course key
type SharingLink struct {
	ID         string    `json:"id" db:"id"`
	FeedbackID string    `json:"feedback_id" db:"feedback_id"`
	CourseKey  string    `json:"course_key" db:"course_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
