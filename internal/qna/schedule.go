package qna

import (
	"fmt"
	"time"
)

// reviewIntervals is the fixed next-review table, in days, indexed by
// floor(score/20) clamped to the last entry.
var reviewIntervals = [...]int{1, 3, 7, 14, 30, 90}

// RatingScore maps a 1-5 self-rating onto a 20-100 performance score.
func RatingScore(rating int) (int, error) {
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	return rating * 20, nil
}

// ReviewInterval returns the number of days until the next review for score.
// Score 60 gives index 3, which is 14 days.
func ReviewInterval(score int) int {
	idx := max(score/20, 0)
	idx = min(idx, len(reviewIntervals)-1)
	return reviewIntervals[idx]
}

// NextReview returns now plus the review interval for score, in calendar days.
func NextReview(now time.Time, score int) time.Time {
	return now.AddDate(0, 0, ReviewInterval(score))
}

// Due reports whether q has a next review date at or before now.
func Due(q Qna, now time.Time) bool {
	return q.NextReview != nil && !q.NextReview.After(now)
}
