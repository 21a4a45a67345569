package entities

import "strconv"

// Ratings are stored zero-based and displayed one-based.
const (
	RatingPoor = iota
	RatingFair
	RatingAverage
	RatingGood
	RatingExcellent
)

// RatingUnavailable is rendered for absent or out-of-range ratings
const RatingUnavailable = "-"

var ratingLabels = [...]string{
	RatingPoor:      "Poor",
	RatingFair:      "Fair",
	RatingAverage:   "Average",
	RatingGood:      "Good",
	RatingExcellent: "Excellent",
}

// RatingLabel returns the label for a stored rating and whether it is in range
func RatingLabel(rating int) (string, bool) {
	if rating < RatingPoor || rating > RatingExcellent {
		return "", false
	}
	return ratingLabels[rating], true
}

// FormatRating renders a stored rating as "N (Label)" with N one-based,
// or "-" when the rating is absent or outside 0-4.
func FormatRating(rating *int) string {
	if rating == nil {
		return RatingUnavailable
	}
	label, ok := RatingLabel(*rating)
	if !ok {
		return RatingUnavailable
	}
	return strconv.Itoa(*rating+1) + " (" + label + ")"
}
