package qna

import (
	"fmt"
	"strings"
)

// MaxRelated is how many related cards a card shows.
const MaxRelated = 3

// MarkdownFilename is the download name of a single-card markdown export.
func MarkdownFilename(q Qna) string {
	return fmt.Sprintf("qna-%d.md", q.ID)
}

// MarkdownExport renders one card as a standalone markdown document.
func MarkdownExport(q Qna, categoryName string) string {
	answer := q.Answer
	if answer == "" {
		answer = "No answer yet"
	}
	tags := "None"
	if len(q.Tags) > 0 {
		tags = strings.Join(q.Tags, ", ")
	}
	difficulty := 0
	if q.Difficulty != nil {
		difficulty = *q.Difficulty
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n---\n", q.Question, answer)
	fmt.Fprintf(&b, "**Category:** %s\n", categoryName)
	fmt.Fprintf(&b, "**Tags:** %s\n", tags)
	fmt.Fprintf(&b, "**Difficulty:** %s", Stars(difficulty))
	return b.String()
}

// Related returns up to MaxRelated cards from all whose ids q lists as
// related, in the order q lists them. Unknown ids are skipped.
func Related(q Qna, all []Qna) []Qna {
	if len(q.RelatedCards) == 0 {
		return nil
	}
	byID := make(map[int64]Qna, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	var out []Qna
	for _, id := range q.RelatedCards {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			if len(out) == MaxRelated {
				break
			}
		}
	}
	return out
}
