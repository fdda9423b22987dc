package card

import (
	"time"

	"github.com/hpungsan/qnadeck/internal/qna"
)

// BodyMode says what the card body shows.
type BodyMode string

const (
	BodyNone     BodyMode = "none"     // no answer yet
	BodyMarkdown BodyMode = "markdown" // Text is markdown to render
	BodyHidden   BodyMode = "hidden"   // flashcard, answer not revealed
	BodyCode     BodyMode = "code"     // code-only view
)

// NeverStudied is shown for a card without a last study time.
const NeverStudied = "Never"

// Analytics is the study summary panel.
type Analytics struct {
	StudyCount  int    `json:"study_count"`
	TimeSpent   string `json:"time_spent"`  // m:ss
	Performance int    `json:"performance"` // percent
	LastStudied string `json:"last_studied"`
}

// CardView is a render-ready snapshot of a card.
type CardView struct {
	ID       int64         `json:"id"`
	Question []qna.Segment `json:"question"`
	Category string        `json:"category"`

	Body        BodyMode        `json:"body"`
	Text        string          `json:"text,omitempty"`
	Faded       bool            `json:"faded"`
	CanExpand   bool            `json:"can_expand"`
	ExpandLabel string          `json:"expand_label,omitempty"`
	CodeBlocks  []qna.CodeBlock `json:"code_blocks,omitempty"`
	Copied      int             `json:"copied"`

	Done       bool `json:"done"`
	Bookmarked bool `json:"bookmarked"`
	HasCode    bool `json:"has_code"`
	Due        bool `json:"due"`

	ReadMinutes int      `json:"read_minutes"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Flashcard bool `json:"flashcard"`
	CodeView  bool `json:"code_view"`
	Reading   bool `json:"reading"`

	Studying       bool   `json:"studying"`
	Timer          string `json:"timer,omitempty"`
	CanRate        bool   `json:"can_rate"`
	SelectedRating int    `json:"selected_rating,omitempty"`

	ShowNotes bool   `json:"show_notes"`
	HasNotes  bool   `json:"has_notes"`
	NoteDraft string `json:"note_draft,omitempty"`

	ShowRelated bool      `json:"show_related"`
	Related     []qna.Qna `json:"related,omitempty"`

	ShowAnalytics bool      `json:"show_analytics"`
	Analytics     Analytics `json:"analytics"`
}

// View snapshots the card at now. expanded and searchTerm come from the
// owner's view state.
func (c *Card) View(expanded bool, searchTerm string, now time.Time) CardView {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.q
	truncated := qna.Truncated(q.Answer, c.opts.PreviewChars)
	v := CardView{
		ID:         q.ID,
		Question:   qna.Highlight(q.Question, searchTerm),
		Category:   c.opts.CategoryName,
		Copied:     c.copiedLocked(now),
		Done:       q.IsDone,
		Bookmarked: q.Bookmark,
		HasCode:    len(c.blocks) > 0,
		Due:        qna.Due(q, now),
		Tags:       append([]string(nil), q.Tags...),
		Flashcard:  c.flashcard,
		CodeView:   c.codeView,
		Reading:    c.reading,
		Studying:   c.studying,
		CanRate:    c.studying && q.Answer != "",
		ShowNotes:  c.showNotes,
		HasNotes:   q.Notes != nil && *q.Notes != "",
		NoteDraft:  c.noteDraft,

		ShowRelated:   c.showRelated,
		ShowAnalytics: c.showAnalytics,
		Analytics:     analytics(q),
	}

	if q.Answer != "" {
		v.ReadMinutes = qna.EstimateReadTime(q.Answer)
	}
	if q.Difficulty != nil {
		v.Difficulty = qna.Stars(*q.Difficulty)
	}
	if c.studying {
		v.Timer = qna.FormatDuration(c.elapsedLocked(now))
		v.SelectedRating = c.selectedRatingLocked(now)
	}
	if c.showRelated {
		v.Related = qna.Related(q, c.opts.Related)
	}
	if truncated {
		v.CanExpand = true
		v.ExpandLabel = "More"
		if expanded {
			v.ExpandLabel = "Less"
		}
	}

	switch {
	case q.Answer == "":
		v.Body = BodyNone
	case c.flashcard && c.showAnswer:
		v.Body = BodyMarkdown
		v.Text = q.Answer
	case c.flashcard:
		v.Body = BodyHidden
	case c.codeView && len(c.blocks) > 0:
		v.Body = BodyCode
		v.CodeBlocks = append([]qna.CodeBlock(nil), c.blocks...)
	default:
		v.Body = BodyMarkdown
		if expanded {
			v.Text = q.Answer
		} else {
			v.Text = qna.Preview(q.Answer, c.opts.PreviewChars)
			v.Faded = truncated
		}
	}
	return v
}

func analytics(q qna.Qna) Analytics {
	a := Analytics{
		StudyCount:  deref(q.StudyCount),
		TimeSpent:   qna.FormatDuration(deref(q.TimeSpent)),
		Performance: deref(q.PerformanceScore),
		LastStudied: NeverStudied,
	}
	if q.LastStudied != nil && !q.LastStudied.IsZero() {
		a.LastStudied = q.LastStudied.Local().Format("2006-01-02")
	}
	return a
}
