package qna

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Category is a named grouping for questions.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Qna is one question/answer study item as returned by the backend.
// An ID <= 0 marks an unsaved item being edited.
type Qna struct {
	ID         int64  `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	IsDone     bool   `json:"is_done"`
	Bookmark   bool   `json:"bookmark"`
	CategoryID *int64 `json:"category_id,omitempty"`

	Enrichment
}

// Enrichment holds the study fields a card reads and updates.
// The backend may or may not return them; all are optional.
type Enrichment struct {
	Difficulty       *int       `json:"difficulty,omitempty"` // 1-5 stars
	Tags             []string   `json:"tags,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	StudyCount       *int       `json:"study_count,omitempty"`
	LastStudied      *Timestamp `json:"last_studied,omitempty"`
	NextReview       *Timestamp `json:"next_review,omitempty"`
	PerformanceScore *int       `json:"performance_score,omitempty"` // 0-100
	TimeSpent        *int       `json:"time_spent,omitempty"`        // seconds
	RelatedCards     []int64    `json:"related_cards,omitempty"`
}

// QnaInput is the body create and edit send: the five base fields only.
type QnaInput struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	IsDone     bool   `json:"is_done"`
	Bookmark   bool   `json:"bookmark"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

// CardUpdate is a partial update of enrichment fields produced by a card.
// Nil fields are left untouched.
type CardUpdate struct {
	TimeSpent        *int       `json:"time_spent,omitempty"`
	StudyCount       *int       `json:"study_count,omitempty"`
	LastStudied      *Timestamp `json:"last_studied,omitempty"`
	PerformanceScore *int       `json:"performance_score,omitempty"`
	NextReview       *Timestamp `json:"next_review,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
}

// IsNew reports whether q has not been saved yet.
func (q Qna) IsNew() bool {
	return q.ID <= 0
}

// Base returns the fields the create/edit form round-trips.
func (q Qna) Base() QnaInput {
	return QnaInput{
		Question:   q.Question,
		Answer:     q.Answer,
		IsDone:     q.IsDone,
		Bookmark:   q.Bookmark,
		CategoryID: q.CategoryID,
	}
}

// Apply returns a copy of q with the non-nil fields of u replaced.
func (q Qna) Apply(u CardUpdate) Qna {
	out := q
	out.Tags = append([]string(nil), q.Tags...)
	out.RelatedCards = append([]int64(nil), q.RelatedCards...)
	if u.TimeSpent != nil {
		out.TimeSpent = intPtr(*u.TimeSpent)
	}
	if u.StudyCount != nil {
		out.StudyCount = intPtr(*u.StudyCount)
	}
	if u.LastStudied != nil {
		ts := *u.LastStudied
		out.LastStudied = &ts
	}
	if u.PerformanceScore != nil {
		out.PerformanceScore = intPtr(*u.PerformanceScore)
	}
	if u.NextReview != nil {
		ts := *u.NextReview
		out.NextReview = &ts
	}
	if u.Notes != nil {
		n := *u.Notes
		out.Notes = &n
	}
	return out
}

// Empty reports whether u carries no field at all.
func (u CardUpdate) Empty() bool {
	return u.TimeSpent == nil && u.StudyCount == nil && u.LastStudied == nil &&
		u.PerformanceScore == nil && u.NextReview == nil && u.Notes == nil
}

// Filter narrows the question list. Nil or empty fields are not sent.
type Filter struct {
	CategoryID *int64
	Done       *bool
	Bookmarked *bool
	Search     string
}

// Query encodes exactly the set filter keys with their literal values.
// Done=false is sent as is_done=false, never omitted.
func (f Filter) Query() url.Values {
	v := url.Values{}
	if f.CategoryID != nil {
		v.Set("category_id", strconv.FormatInt(*f.CategoryID, 10))
	}
	if f.Done != nil {
		v.Set("is_done", strconv.FormatBool(*f.Done))
	}
	if f.Bookmarked != nil {
		v.Set("bookmark", strconv.FormatBool(*f.Bookmarked))
	}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	return v
}

// Equal reports whether two filters select the same request.
func (f Filter) Equal(o Filter) bool {
	return f.Query().Encode() == o.Query().Encode()
}

// ParseTriState parses "", "true" or "false" into an optional bool.
// Used by the CLI flags and the web query string.
func ParseTriState(s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return nil, nil
	case "true", "yes", "1":
		return boolPtr(true), nil
	case "false", "no", "0":
		return boolPtr(false), nil
	default:
		return nil, fmt.Errorf("expected true, false or empty, got %q", s)
	}
}

// CategoryName looks up a category name by id, "" when unset or unknown.
func CategoryName(categories []Category, id *int64) string {
	if id == nil {
		return ""
	}
	for _, c := range categories {
		if c.ID == *id {
			return c.Name
		}
	}
	return ""
}

// Find returns the question with the given id.
func Find(items []Qna, id int64) (Qna, bool) {
	for _, q := range items {
		if q.ID == id {
			return q, true
		}
	}
	return Qna{}, false
}

// Timestamp is a time that accepts the backend's ISO formats, with or
// without a zone, and always emits RFC 3339 in UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }
