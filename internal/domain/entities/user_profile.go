package entities

// UserProfile is the directory view of a learner
type UserProfile struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	ProfileName  string `json:"profile_name"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
}

// DisplayName prefers the profile name, then the account full name, then the username
func (p *UserProfile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.ProfileName != "" {
		return p.ProfileName
	}
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}
