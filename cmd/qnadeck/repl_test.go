package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/qnadeck/internal/backendtest"
	"github.com/hpungsan/qnadeck/internal/card"
	"github.com/hpungsan/qnadeck/internal/qna"
)

// safeBuffer is a bytes.Buffer shared with debounced loads.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *safeBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// newTestREPL builds a loaded session over b. input feeds prompts.
func newTestREPL(t *testing.T, b *backendtest.Backend, input string) (*repl, *safeBuffer) {
	t.Helper()
	cfg := b.Config()
	cfg.DebounceMS = 10
	cfg.ClipboardCommand = []string{"cat"}

	out := &safeBuffer{}
	r := newREPL(context.Background(), b.Client(), cfg, strings.NewReader(input), out)
	t.Cleanup(r.close)
	if err := r.sh.Load(context.Background()); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	return r, out
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestREPL_LoadPrintsList(t *testing.T) {
	b := backendtest.New(t)
	cat := b.AddCategory("Go")
	b.AddQna(qna.Qna{Question: "What is Go?", Answer: "A language.", CategoryID: int64Ptr(cat.ID), Bookmark: true})

	_, out := newTestREPL(t, b, "")

	got := out.String()
	if !strings.Contains(got, "What is Go?") {
		t.Errorf("expected question in output, got %q", got)
	}
	if !strings.Contains(got, "Go · bookmarked") {
		t.Errorf("expected indicators, got %q", got)
	}
}

func TestREPL_SearchIsDebounced(t *testing.T) {
	b := backendtest.New(t)
	b.AddQna(qna.Qna{Question: "Explain channels"})
	b.AddQna(qna.Qna{Question: "Explain maps"})
	r, out := newTestREPL(t, b, "")
	before := b.Count(http.MethodGet, "/qnas/")

	r.exec("search c")
	r.exec("search ch")
	r.exec("search chan")

	waitFor(t, func() bool { return b.Count(http.MethodGet, "/qnas/") > before })
	time.Sleep(50 * time.Millisecond)

	var searches []string
	for _, req := range b.Requests() {
		if req.Path == "/qnas/" && strings.Contains(req.RawQuery, "search=") {
			searches = append(searches, req.RawQuery)
		}
	}
	if len(searches) != 1 || searches[0] != "search=chan" {
		t.Errorf("expected one search=chan load, got %v", searches)
	}
	if !strings.Contains(out.String(), "[chan]") {
		t.Errorf("expected highlighted match, got %q", out.String())
	}
}

func TestREPL_FilterCommands(t *testing.T) {
	b := backendtest.New(t)
	r, out := newTestREPL(t, b, "")

	r.exec("done-filter maybe")
	if !strings.Contains(out.String(), "[INVALID_REQUEST]") {
		t.Errorf("expected invalid filter error, got %q", out.String())
	}

	r.exec("cat 7")
	r.exec("bookmark-filter true")
	state := r.sh.State()
	if state.Filter.CategoryID == nil || *state.Filter.CategoryID != 7 {
		t.Errorf("expected category filter 7, got %v", state.Filter.CategoryID)
	}
	if state.Filter.Bookmarked == nil || !*state.Filter.Bookmarked {
		t.Error("expected bookmark filter")
	}

	r.exec("clear")
	if !r.sh.State().Filter.Equal(qna.Filter{}) {
		t.Errorf("expected filters cleared, got %+v", r.sh.State().Filter)
	}
}

func TestREPL_AddAndSave(t *testing.T) {
	b := backendtest.New(t)
	cat := b.AddCategory("Go")
	input := "What is a slice?\nA view over an array.\nIt has a length.\n.\n" + itoa(cat.ID) + "\n"
	r, out := newTestREPL(t, b, input)

	r.exec("add")
	r.exec("save")

	if !strings.Contains(out.String(), "saved") {
		t.Fatalf("expected saved, got %q", out.String())
	}
	if r.sh.State().QnaModal != nil {
		t.Error("draft should be closed after save")
	}
	found := false
	for _, q := range r.sh.State().Qnas {
		if q.Question == "What is a slice?" {
			found = true
			if q.Answer != "A view over an array.\nIt has a length." {
				t.Errorf("unexpected answer %q", q.Answer)
			}
			if q.CategoryID == nil || *q.CategoryID != cat.ID {
				t.Errorf("unexpected category %v", q.CategoryID)
			}
		}
	}
	if !found {
		t.Error("saved question not reloaded")
	}
}

func TestREPL_EditKeepsBlankFields(t *testing.T) {
	b := backendtest.New(t)
	q := b.AddQna(qna.Qna{Question: "Old question", Answer: "Old answer"})
	r, _ := newTestREPL(t, b, "New question\n\n\n")

	r.exec("edit " + itoa(q.ID))
	r.exec("save")

	stored, _ := b.Qna(q.ID)
	if stored.Question != "New question" || stored.Answer != "Old answer" {
		t.Errorf("unexpected stored question: %+v", stored)
	}
}

func TestREPL_SaveWithoutDraft(t *testing.T) {
	b := backendtest.New(t)
	r, out := newTestREPL(t, b, "")

	r.exec("save")
	if !strings.Contains(out.String(), "nothing to save") {
		t.Errorf("expected nothing to save, got %q", out.String())
	}
}

func TestREPL_DeleteConfirmation(t *testing.T) {
	b := backendtest.New(t)
	q := b.AddQna(qna.Qna{Question: "Delete me"})

	t.Run("declined", func(t *testing.T) {
		r, out := newTestREPL(t, b, "n\n")
		r.exec("delete " + itoa(q.ID))
		if !strings.Contains(out.String(), "Delete this question? [y/N]") {
			t.Errorf("expected prompt, got %q", out.String())
		}
		if _, ok := b.Qna(q.ID); !ok {
			t.Error("declined delete must keep the question")
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		r, out := newTestREPL(t, b, "y\n")
		out.Reset()
		r.exec("delete " + itoa(q.ID))
		if _, ok := b.Qna(q.ID); ok {
			t.Error("question should be deleted")
		}
		if !strings.Contains(out.String(), "(no questions)") {
			t.Errorf("expected reloaded empty list, got %q", out.String())
		}
	})
}

func TestREPL_ToggleDoneSendsNegation(t *testing.T) {
	b := backendtest.New(t)
	q := b.AddQna(qna.Qna{Question: "Toggle", IsDone: true})
	r, _ := newTestREPL(t, b, "")

	r.exec("done " + itoa(q.ID))
	r.exec("bookmark " + itoa(q.ID))

	stored, _ := b.Qna(q.ID)
	if stored.IsDone || !stored.Bookmark {
		t.Errorf("unexpected stored question: %+v", stored)
	}

	// The card picked up the reloaded item, so a second toggle flips back.
	r.exec("done " + itoa(q.ID))
	stored, _ = b.Qna(q.ID)
	if !stored.IsDone {
		t.Error("second toggle should set done again")
	}
}

func TestREPL_StudyAndRate(t *testing.T) {
	b := backendtest.New(t)
	q := b.AddQna(qna.Qna{Question: "Rate me", Answer: "Answer"})
	r, out := newTestREPL(t, b, "")
	id := itoa(q.ID)

	r.exec("rate " + id + " 3")
	if !strings.Contains(out.String(), "only available while studying") {
		t.Errorf("expected rating refused, got %q", out.String())
	}

	r.exec("study " + id)
	r.exec("rate " + id + " 3")
	if !strings.Contains(out.String(), "next review in 14 days") {
		t.Errorf("expected schedule, got %q", out.String())
	}

	stored, _ := b.Qna(q.ID)
	if stored.PerformanceScore == nil || *stored.PerformanceScore != 60 {
		t.Errorf("expected performance 60, got %v", stored.PerformanceScore)
	}
	if stored.NextReview == nil {
		t.Error("expected next review date")
	}
	if stored.Answer != "Answer" {
		t.Error("card updates must send the whole question")
	}

	r.exec("rate " + id + " 9")
	if !strings.Contains(out.String(), "[INVALID_REQUEST]") {
		t.Errorf("expected invalid rating, got %q", out.String())
	}
}

func TestREPL_Notes(t *testing.T) {
	b := backendtest.New(t)
	q := b.AddQna(qna.Qna{Question: "Note me"})
	r, out := newTestREPL(t, b, "")

	r.exec("note " + itoa(q.ID) + " remember defer order")
	stored, _ := b.Qna(q.ID)
	if stored.Notes == nil || *stored.Notes != "remember defer order" {
		t.Errorf("unexpected notes %v", stored.Notes)
	}

	r.exec("note " + itoa(q.ID) + " remember defer order")
	if !strings.Contains(out.String(), "notes unchanged") {
		t.Errorf("expected unchanged, got %q", out.String())
	}
}

func TestREPL_CodeViewAndCopy(t *testing.T) {
	b := backendtest.New(t)
	code := b.AddQna(qna.Qna{Question: "Code", Answer: "Run:\n```go\nfmt.Println(1)\n```\nor `go run .`"})
	plain := b.AddQna(qna.Qna{Question: "Plain", Answer: "No code here"})
	r, out := newTestREPL(t, b, "")

	r.exec("code " + itoa(code.ID))
	got := out.String()
	if !strings.Contains(got, "[0] block go") || !strings.Contains(got, "[1] inline") {
		t.Errorf("expected code blocks, got %q", got)
	}

	r.exec("copy " + itoa(code.ID) + " 0")
	if !strings.Contains(out.String(), "Copied!") {
		t.Errorf("expected copy ack, got %q", out.String())
	}

	r.exec("code " + itoa(plain.ID))
	if !strings.Contains(out.String(), "this answer has no code") {
		t.Errorf("expected no-code error, got %q", out.String())
	}
}

func TestREPL_Categories(t *testing.T) {
	b := backendtest.New(t)
	r, _ := newTestREPL(t, b, "y\n")

	r.exec("cat-add Data Structures")
	cats := b.Categories()
	if len(cats) != 1 || cats[0].Name != "Data Structures" {
		t.Fatalf("unexpected categories %+v", cats)
	}
	id := itoa(cats[0].ID)

	r.exec("cat-rename " + id + " Algorithms")
	if got := b.Categories()[0].Name; got != "Algorithms" {
		t.Errorf("expected rename, got %q", got)
	}

	r.exec("cat-delete " + id)
	if len(b.Categories()) != 0 {
		t.Error("category should be deleted")
	}
}

func TestREPL_UnknownAndQuit(t *testing.T) {
	b := backendtest.New(t)
	r, out := newTestREPL(t, b, "")

	if r.exec("frobnicate") {
		t.Error("unknown command must not quit")
	}
	if !strings.Contains(out.String(), `unknown command "frobnicate"`) {
		t.Errorf("expected unknown command error, got %q", out.String())
	}
	if r.exec("show 999") {
		t.Error("show must not quit")
	}
	if !strings.Contains(out.String(), "[NOT_FOUND]") {
		t.Errorf("expected NOT_FOUND, got %q", out.String())
	}
	if !r.exec("quit") || !r.exec("exit") {
		t.Error("quit and exit should end the session")
	}
	if r.exec("   ") {
		t.Error("blank line must not quit")
	}
}

func TestRunREPL_EndsOnEOF(t *testing.T) {
	b := backendtest.New(t)
	cfg := b.Config()
	cfg.DebounceMS = 10
	var out safeBuffer

	err := runREPL(context.Background(), b.Client(), cfg, strings.NewReader("help\n"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Commands:") {
		t.Errorf("expected help text, got %q", out.String())
	}
}

func TestWriteCard(t *testing.T) {
	tests := []struct {
		name string
		view card.CardView
		want []string
	}{
		{
			name: "no answer",
			view: card.CardView{ID: 1, Question: []qna.Segment{{Text: "Q"}}, Body: card.BodyNone},
			want: []string{"#1 Q", "(no answer yet)"},
		},
		{
			name: "hidden flashcard",
			view: card.CardView{ID: 2, Question: []qna.Segment{{Text: "Q"}}, Body: card.BodyHidden},
			want: []string{"'flip 2' to reveal"},
		},
		{
			name: "collapsed preview",
			view: card.CardView{
				ID:          3,
				Question:    []qna.Segment{{Text: "Use "}, {Text: "defer", Match: true}},
				Body:        card.BodyMarkdown,
				Text:        "short",
				Faded:       true,
				CanExpand:   true,
				ExpandLabel: "More",
				Done:        true,
				Difficulty:  "★★☆☆☆",
			},
			want: []string{"#3 Use [defer]", "done · ★★☆☆☆", "    short", "...", "['expand 3': More]"},
		},
		{
			name: "studying",
			view: card.CardView{ID: 4, Body: card.BodyMarkdown, Text: "a", Studying: true, Timer: "0:05", CanRate: true},
			want: []string{"studying 0:05 (rate 1-5)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			writeCard(&b, tt.view)
			for _, w := range tt.want {
				if !strings.Contains(b.String(), w) {
					t.Errorf("expected %q in %q", w, b.String())
				}
			}
		})
	}
}

// blockingSpeaker speaks until its context is cancelled.
type blockingSpeaker struct {
	once      sync.Once
	started   chan struct{}
	cancelled chan struct{}
}

func newBlockingSpeaker() *blockingSpeaker {
	return &blockingSpeaker{started: make(chan struct{}), cancelled: make(chan struct{})}
}

func (s *blockingSpeaker) Speak(ctx context.Context, _ string) error {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	close(s.cancelled)
	return ctx.Err()
}

func (r *repl) cached(id int64) (*card.Card, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	return c, ok
}

func TestREPL_DeletedCardIsClosed(t *testing.T) {
	b := backendtest.New(t)
	q := b.AddQna(qna.Qna{Question: "Read me", Answer: "Some answer"})
	r, _ := newTestREPL(t, b, "y\n")
	speaker := newBlockingSpeaker()
	r.opts.Speaker = speaker
	id := itoa(q.ID)

	r.exec("read " + id)
	select {
	case <-speaker.started:
	case <-time.After(time.Second):
		t.Fatal("speech did not start")
	}
	r.exec("study " + id)
	c, ok := r.cached(q.ID)
	if !ok {
		t.Fatal("expected a cached card")
	}

	r.exec("delete " + id)

	select {
	case <-speaker.cancelled:
	case <-time.After(time.Second):
		t.Fatal("speech still running after the card left the list")
	}
	if c.Reading() || c.Studying() {
		t.Errorf("expected card stopped: reading=%v studying=%v", c.Reading(), c.Studying())
	}
	if _, ok := r.cached(q.ID); ok {
		t.Error("deleted card should be evicted")
	}
}

func TestREPL_FilteredOutCardIsClosed(t *testing.T) {
	b := backendtest.New(t)
	kept := b.AddQna(qna.Qna{Question: "Explain channels", Answer: "a"})
	dropped := b.AddQna(qna.Qna{Question: "Explain maps", Answer: "b"})
	r, _ := newTestREPL(t, b, "")
	speaker := newBlockingSpeaker()
	r.opts.Speaker = speaker

	r.exec("show " + itoa(kept.ID))
	r.exec("read " + itoa(dropped.ID))
	<-speaker.started

	r.exec("search chan")

	select {
	case <-speaker.cancelled:
	case <-time.After(time.Second):
		t.Fatal("speech still running after the search dropped the card")
	}
	waitFor(t, func() bool {
		_, ok := r.cached(dropped.ID)
		return !ok
	})
	if _, ok := r.cached(kept.ID); !ok {
		t.Error("card still in the list should stay cached")
	}
}
