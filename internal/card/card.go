// Package card holds the per-item study state for one question: flashcard
// mode, code view, study timer, rating, read-aloud and notes.
//
// A Card never talks to the backend. Everything that should outlive it is
// reported through Callbacks.
package card

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/qna"
)

// AckWindow is how long a copy or a rating stays acknowledged.
const AckWindow = 2 * time.Second

// ExportFormat is a per-card export flavor.
type ExportFormat string

const (
	ExportMarkdown ExportFormat = "markdown"
	ExportPDF      ExportFormat = "pdf"
)

// Callbacks are the channels through which a card reports to its owner.
// Any of them may be nil.
type Callbacks struct {
	OnToggleExpand   func()
	OnEdit           func()
	OnDelete         func()
	OnToggleBookmark func()
	OnToggleDone     func()
	OnUpdateCard     func(qna.CardUpdate)
	OnExport         func(ExportFormat)
}

// Options configures a Card.
type Options struct {
	Clock        Clock
	Speaker      Speaker
	Clipboard    Clipboard
	Logger       *log.Logger
	PreviewChars int
	CategoryName string
	Related      []qna.Qna // the collection related_cards ids are resolved against
}

// Card is the local state of one question's card. Methods are safe for
// concurrent use; speech completes on its own goroutine.
type Card struct {
	mu   sync.Mutex
	q    qna.Qna
	cb   Callbacks
	opts Options

	blocks []qna.CodeBlock

	flashcard  bool
	showAnswer bool
	codeView   bool

	studying   bool
	studyStart time.Time

	copiedIndex int
	copiedAt    time.Time

	rating  int
	ratedAt time.Time

	reading      bool
	speechGen    int
	cancelSpeech context.CancelFunc

	noteDraft     string
	showNotes     bool
	showRelated   bool
	showAnalytics bool
}

// New creates a card for q.
func New(q qna.Qna, cb Callbacks, opts Options) *Card {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = qna.DefaultPreviewChars
	}
	c := &Card{
		cb:          cb,
		opts:        opts,
		showAnswer:  true,
		copiedIndex: -1,
	}
	c.setQna(q)
	if q.Notes != nil {
		c.noteDraft = *q.Notes
	}
	return c
}

// Qna returns the item the card currently shows.
func (c *Card) Qna() qna.Qna {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q
}

// SetQna swaps in a reloaded copy of the item. Local state is kept,
// including an uncommitted note draft.
func (c *Card) SetQna(q qna.Qna) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setQna(q)
}

func (c *Card) setQna(q qna.Qna) {
	c.q = q
	c.blocks = qna.ExtractCodeBlocks(q.Answer)
	if len(c.blocks) == 0 {
		c.codeView = false
	}
}

// SetCallbacks replaces the callback bundle.
func (c *Card) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// Pass-through actions. The owner decides what they mean.

func (c *Card) ToggleExpand()   { c.fire(func(cb Callbacks) func() { return cb.OnToggleExpand }) }
func (c *Card) Edit()           { c.fire(func(cb Callbacks) func() { return cb.OnEdit }) }
func (c *Card) Delete()         { c.fire(func(cb Callbacks) func() { return cb.OnDelete }) }
func (c *Card) ToggleBookmark() { c.fire(func(cb Callbacks) func() { return cb.OnToggleBookmark }) }
func (c *Card) ToggleDone()     { c.fire(func(cb Callbacks) func() { return cb.OnToggleDone }) }

func (c *Card) fire(pick func(Callbacks) func()) {
	c.mu.Lock()
	fn := pick(c.cb)
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ToggleFlashcard switches flashcard mode. Entering hides the answer;
// leaving always shows it again.
func (c *Card) ToggleFlashcard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flashcard = !c.flashcard
	c.showAnswer = !c.flashcard
}

// Flip reveals or hides the answer. It only has an effect in flashcard mode.
func (c *Card) Flip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flashcard {
		c.showAnswer = !c.showAnswer
	}
}

// AnswerVisible reports whether the answer is currently shown.
func (c *Card) AnswerVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showAnswer
}

// Flashcard reports whether flashcard mode is on.
func (c *Card) Flashcard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flashcard
}

// ToggleCodeView switches between the text and the code-only view. Answers
// without code have no code view.
func (c *Card) ToggleCodeView() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) == 0 {
		return false
	}
	c.codeView = !c.codeView
	return c.codeView
}

// CodeBlocks returns the code found in the answer.
func (c *Card) CodeBlocks() []qna.CodeBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]qna.CodeBlock(nil), c.blocks...)
}

// CopyCode puts block index on the clipboard. A failed copy is only logged.
func (c *Card) CopyCode(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.blocks) {
		n := len(c.blocks)
		c.mu.Unlock()
		return errors.NewInvalidRequest(fmt.Sprintf("code block %d out of range (answer has %d)", index, n))
	}
	code := c.blocks[index].Code
	clip := c.opts.Clipboard
	c.mu.Unlock()

	if clip == nil {
		c.opts.Logger.Printf("failed to copy code: no clipboard available")
		return nil
	}
	if err := clip.Copy(ctx, code); err != nil {
		c.opts.Logger.Printf("failed to copy code: %v", err)
		return nil
	}

	c.mu.Lock()
	c.copiedIndex = index
	c.copiedAt = c.opts.Clock.Now()
	c.mu.Unlock()
	return nil
}

// Copied reports whether block index was copied within the last AckWindow.
func (c *Card) Copied(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copiedLocked(c.opts.Clock.Now()) == index
}

func (c *Card) copiedLocked(now time.Time) int {
	if c.copiedIndex < 0 || now.Sub(c.copiedAt) >= AckWindow {
		return -1
	}
	return c.copiedIndex
}

// StartStudy starts the study timer. It is a no-op while already studying.
func (c *Card) StartStudy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.studying {
		return
	}
	c.studying = true
	c.studyStart = c.opts.Clock.Now()
}

// StopStudy stops the timer and, when at least one second accrued, reports
// the added time, one more study session and the study time.
func (c *Card) StopStudy() {
	c.mu.Lock()
	if !c.studying {
		c.mu.Unlock()
		return
	}
	now := c.opts.Clock.Now()
	elapsed := wholeSeconds(now.Sub(c.studyStart))
	c.studying = false
	q := c.q
	report := c.cb.OnUpdateCard
	c.mu.Unlock()

	if elapsed <= 0 || report == nil {
		return
	}
	timeSpent := deref(q.TimeSpent) + elapsed
	studyCount := deref(q.StudyCount) + 1
	report(qna.CardUpdate{
		TimeSpent:   &timeSpent,
		StudyCount:  &studyCount,
		LastStudied: qna.NewTimestamp(now),
	})
}

// ToggleStudy starts or stops the timer.
func (c *Card) ToggleStudy() {
	if c.Studying() {
		c.StopStudy()
		return
	}
	c.StartStudy()
}

// Studying reports whether the timer runs.
func (c *Card) Studying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studying
}

// Elapsed returns the whole seconds of the running session, 0 when stopped.
func (c *Card) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked(c.opts.Clock.Now())
}

func (c *Card) elapsedLocked(now time.Time) int {
	if !c.studying {
		return 0
	}
	return wholeSeconds(now.Sub(c.studyStart))
}

// CanRate reports whether a rating is offered: while studying an answered card.
func (c *Card) CanRate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studying && c.q.Answer != ""
}

// Rate records a 1-5 self-assessment. The score (rating x 20) picks the next
// review date from the fixed interval table.
func (c *Card) Rate(rating int) error {
	score, err := qna.RatingScore(rating)
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}

	c.mu.Lock()
	if !c.studying || c.q.Answer == "" {
		c.mu.Unlock()
		return errors.NewInvalidRequest("rating is only available while studying an answered card")
	}
	now := c.opts.Clock.Now()
	c.rating = rating
	c.ratedAt = now
	report := c.cb.OnUpdateCard
	c.mu.Unlock()

	if report != nil {
		report(qna.CardUpdate{
			PerformanceScore: &score,
			NextReview:       qna.NewTimestamp(qna.NextReview(now, score)),
			LastStudied:      qna.NewTimestamp(now),
		})
	}
	return nil
}

// SelectedRating returns the rating given within the last AckWindow, or 0.
func (c *Card) SelectedRating() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedRatingLocked(c.opts.Clock.Now())
}

func (c *Card) selectedRatingLocked(now time.Time) int {
	if c.rating == 0 || now.Sub(c.ratedAt) >= AckWindow {
		return 0
	}
	return c.rating
}

// ToggleSpeech starts reading the answer aloud, or stops the current
// utterance. It returns whether the card is reading afterwards.
func (c *Card) ToggleSpeech(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reading {
		c.stopSpeechLocked()
		return false
	}
	if c.q.Answer == "" || c.opts.Speaker == nil {
		return false
	}

	speechCtx, cancel := context.WithCancel(ctx)
	c.speechGen++
	gen := c.speechGen
	c.cancelSpeech = cancel
	c.reading = true

	speaker, text := c.opts.Speaker, c.q.Answer
	go func() {
		defer cancel()
		_ = speaker.Speak(speechCtx, text)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.speechGen == gen {
			c.reading = false
			c.cancelSpeech = nil
		}
	}()
	return true
}

// Reading reports whether an utterance is in flight.
func (c *Card) Reading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reading
}

func (c *Card) stopSpeechLocked() {
	if c.cancelSpeech != nil {
		c.cancelSpeech()
		c.cancelSpeech = nil
	}
	c.speechGen++
	c.reading = false
}

// SetNoteDraft replaces the note being typed.
func (c *Card) SetNoteDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noteDraft = text
}

// NoteDraft returns the note being typed.
func (c *Card) NoteDraft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noteDraft
}

// CommitNotes reports the draft when it differs from the stored notes.
// It returns whether an update was reported.
func (c *Card) CommitNotes() bool {
	c.mu.Lock()
	draft := c.noteDraft
	changed := c.q.Notes == nil || *c.q.Notes != draft
	report := c.cb.OnUpdateCard
	c.mu.Unlock()

	if !changed || report == nil {
		return false
	}
	report(qna.CardUpdate{Notes: &draft})
	return true
}

// ToggleNotes shows or hides the notes panel.
func (c *Card) ToggleNotes() { c.toggle(&c.showNotes) }

// ToggleRelated shows or hides the related cards panel.
func (c *Card) ToggleRelated() { c.toggle(&c.showRelated) }

// ToggleAnalytics shows or hides the analytics panel.
func (c *Card) ToggleAnalytics() { c.toggle(&c.showAnalytics) }

func (c *Card) toggle(flag *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*flag = !*flag
}

// Export hands format to OnExport when set. Without a handler, markdown is
// produced locally and returned as a file name and content.
func (c *Card) Export(format ExportFormat) (filename, content string, err error) {
	c.mu.Lock()
	q := c.q
	handler := c.cb.OnExport
	category := c.opts.CategoryName
	c.mu.Unlock()

	if handler != nil {
		handler(format)
		return "", "", nil
	}
	switch format {
	case ExportMarkdown:
		return qna.MarkdownFilename(q), qna.MarkdownExport(q, category), nil
	case ExportPDF:
		return "", "", errors.NewInvalidRequest("pdf export needs an export handler")
	default:
		return "", "", errors.NewInvalidRequest(fmt.Sprintf("unknown export format %q", format))
	}
}

// Close cancels any in-flight utterance and stops the timer without
// reporting the session.
func (c *Card) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopSpeechLocked()
	c.studying = false
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
