package entities

import "time"

// DefaultConsentToShare is applied to records created without an explicit choice
const DefaultConsentToShare = true

// Feedback is one learner's rating and comment for one block of a course.
// (CourseKey, UserID, BlockID) is unique.
type Feedback struct {
	ID             string    `json:"id" db:"id"`
	CourseKey      string    `json:"course_key" db:"course_key"`
	UserID         string    `json:"user_id" db:"user_id"`
	BlockID        string    `json:"block_id" db:"block_id"`
	BlockName      *string   `json:"block_name,omitempty" db:"block_name"`
	Rating         *int      `json:"rating,omitempty" db:"rating"`
	Message        *string   `json:"feedback,omitempty" db:"feedback"`
	ConsentToShare bool      `json:"consent_to_share" db:"consent_to_share"`
	IsApproved     bool      `json:"is_approved" db:"is_approved"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	ModifiedAt     time.Time `json:"modified_at" db:"modified_at"`
}

// PubliclyVisible reports whether the record may be exposed outside administration
func (f *Feedback) PubliclyVisible() bool {
	return f != nil && f.IsApproved && f.ConsentToShare
}

func (f *Feedback) String() string {
	return f.CourseKey + "-" + f.UserID
}
