package card

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qnadeck/internal/qna"
)

func TestView_Preview(t *testing.T) {
	exact := strings.Repeat("a", 150)
	long := strings.Repeat("b", 151)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	v := New(qna.Qna{ID: 1, Answer: exact}, Callbacks{}, Options{}).View(false, "", now)
	require.Equal(t, BodyMarkdown, v.Body)
	require.Equal(t, exact, v.Text)
	require.False(t, v.Faded)
	require.False(t, v.CanExpand)

	c := New(qna.Qna{ID: 2, Answer: long}, Callbacks{}, Options{})
	v = c.View(false, "", now)
	require.Equal(t, strings.Repeat("b", 150)+"...", v.Text)
	require.True(t, v.Faded)
	require.True(t, v.CanExpand)
	require.Equal(t, "More", v.ExpandLabel)

	v = c.View(true, "", now)
	require.Equal(t, long, v.Text)
	require.False(t, v.Faded)
	require.Equal(t, "Less", v.ExpandLabel)
}

func TestView_BodyModes(t *testing.T) {
	now := time.Now()

	v := New(qna.Qna{ID: 1, Question: "q"}, Callbacks{}, Options{}).View(false, "", now)
	require.Equal(t, BodyNone, v.Body)
	require.Equal(t, 0, v.ReadMinutes)

	c := New(qna.Qna{ID: 2, Answer: codeAnswer}, Callbacks{}, Options{})
	c.ToggleCodeView()
	v = c.View(false, "", now)
	require.Equal(t, BodyCode, v.Body)
	require.Len(t, v.CodeBlocks, 3)
	require.True(t, v.HasCode)

	c.ToggleFlashcard()
	v = c.View(false, "", now)
	require.Equal(t, BodyHidden, v.Body)
	require.Empty(t, v.Text)

	c.Flip()
	v = c.View(false, "", now)
	require.Equal(t, BodyMarkdown, v.Body)
	require.Equal(t, codeAnswer, v.Text, "revealed flashcard shows the full answer")
}

func TestView_Highlight(t *testing.T) {
	c := New(qna.Qna{ID: 1, Question: "What is a <b>Goroutine</b>?"}, Callbacks{}, Options{})
	v := c.View(false, "goroutine", time.Now())

	require.Equal(t, []qna.Segment{
		{Text: "What is a <b>"},
		{Text: "Goroutine", Match: true},
		{Text: "</b>?"},
	}, v.Question)
}

func TestView_IndicatorsAndAnalytics(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	q := qna.Qna{
		ID:       1,
		Question: "q",
		Answer:   "one two three",
		IsDone:   true,
		Bookmark: true,
		Enrichment: qna.Enrichment{
			Difficulty:       intPtr(3),
			Tags:             []string{"go"},
			StudyCount:       intPtr(4),
			TimeSpent:        intPtr(125),
			PerformanceScore: intPtr(80),
			NextReview:       qna.NewTimestamp(now.Add(-time.Hour)),
		},
	}
	v := New(q, Callbacks{}, Options{CategoryName: "Go"}).View(false, "", now)

	require.True(t, v.Done)
	require.True(t, v.Bookmarked)
	require.True(t, v.Due)
	require.False(t, v.HasCode)
	require.Equal(t, 1, v.ReadMinutes)
	require.Equal(t, "★★★☆☆", v.Difficulty)
	require.Equal(t, []string{"go"}, v.Tags)
	require.Equal(t, "Go", v.Category)
	require.Equal(t, Analytics{StudyCount: 4, TimeSpent: "2:05", Performance: 80, LastStudied: NeverStudied}, v.Analytics)
}

func TestView_StudyTimer(t *testing.T) {
	clock := newFakeClock()
	c := New(qna.Qna{ID: 1, Answer: "a"}, Callbacks{}, Options{Clock: clock})

	c.StartStudy()
	clock.Advance(75 * time.Second)
	v := c.View(false, "", clock.Now())
	require.True(t, v.Studying)
	require.True(t, v.CanRate)
	require.Equal(t, "1:15", v.Timer)

	require.NoError(t, c.Rate(5))
	v = c.View(false, "", clock.Now())
	require.Equal(t, 5, v.SelectedRating)
}

func TestView_Related(t *testing.T) {
	all := []qna.Qna{{ID: 1}, {ID: 2, Question: "two"}, {ID: 3, Question: "three"}}
	q := qna.Qna{ID: 1, Enrichment: qna.Enrichment{RelatedCards: []int64{3, 2}}}
	c := New(q, Callbacks{}, Options{Related: all})

	require.Nil(t, c.View(false, "", time.Now()).Related)
	c.ToggleRelated()
	v := c.View(false, "", time.Now())
	require.True(t, v.ShowRelated)
	require.Len(t, v.Related, 2)
	require.Equal(t, "three", v.Related[0].Question)
}
