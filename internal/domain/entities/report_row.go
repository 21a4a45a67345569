package entities

// FeedbackReportRow joins a feedback record with directory data for review and export.
// Directory fields are empty when the lookup failed.
type FeedbackReportRow struct {
	Feedback     *Feedback `json:"feedback"`
	CourseName   string    `json:"course_name"`
	UserName     string    `json:"user_name"`
	Email        string    `json:"email"`
	MobileNumber string    `json:"mobile_number"`
}
