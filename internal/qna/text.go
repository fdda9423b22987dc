package qna

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// DefaultPreviewChars is the collapsed answer preview length.
const DefaultPreviewChars = 150

// wordsPerMinute drives EstimateReadTime.
const wordsPerMinute = 200

// Truncated reports whether answer is longer than limit characters.
func Truncated(answer string, limit int) bool {
	return utf8.RuneCountInString(answer) > limit
}

// Preview returns answer cut to limit characters plus "..." when it is longer,
// otherwise answer unchanged. Exactly limit characters are shown in full.
func Preview(answer string, limit int) string {
	if !Truncated(answer, limit) {
		return answer
	}
	runes := []rune(answer)
	return string(runes[:limit]) + "..."
}

// EstimateReadTime returns reading minutes at 200 words per minute, rounded up.
func EstimateReadTime(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(words)) / wordsPerMinute))
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Stars renders a 1-5 difficulty as filled and empty stars.
func Stars(difficulty int) string {
	difficulty = min(max(difficulty, 0), 5)
	return strings.Repeat("★", difficulty) + strings.Repeat("☆", 5-difficulty)
}
