// Package shell owns the view state of a study session and keeps it in
// sync with the backend: debounced reloads on filter changes, and a full
// reload after every mutation.
package shell

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/qnadeck/internal/card"
	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/qna"
)

// Confirmation prompts.
const (
	PromptDeleteQna      = "Delete this question?"
	PromptDeleteCategory = "Delete this category and its QnAs?"
)

// DefaultDebounce is the quiet period before a filter change reloads.
const DefaultDebounce = time.Second

// Gateway is the part of the backend client the shell uses.
type Gateway interface {
	ListQnas(ctx context.Context, f qna.Filter) ([]qna.Qna, error)
	CreateQna(ctx context.Context, in qna.QnaInput) (*qna.Qna, error)
	UpdateQna(ctx context.Context, id int64, body any) (*qna.Qna, error)
	DeleteQna(ctx context.Context, id int64) error
	ToggleBookmark(ctx context.Context, id int64) error
	MarkDone(ctx context.Context, id int64, done bool) error
	ListCategories(ctx context.Context) ([]qna.Category, error)
	CreateCategory(ctx context.Context, name string) (*qna.Category, error)
	UpdateCategory(ctx context.Context, id int64, name string) (*qna.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	Export(ctx context.Context, f gateway.Format) ([]byte, error)
	Import(ctx context.Context, f gateway.Format, filename string, r io.Reader) (map[string]any, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Options configures a Shell.
type Options struct {
	Debounce  time.Duration   // DefaultDebounce when zero
	Confirmer Confirmer       // nil accepts every prompt
	Logger    *log.Logger     // log.Default() when nil
	OnChange  func(ViewState) // called after every state change
	OnLoad    func(ViewState) // called after each applied load
	DarkMode  bool
}

// Shell holds the canonical view state.
type Shell struct {
	gw   Gateway
	opts Options

	mu      sync.Mutex
	state   ViewState
	loadCtx context.Context

	debounce *debouncer
}

// New creates a Shell over gw. Call Start to run the initial load.
func New(gw Gateway, opts Options) *Shell {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Shell{
		gw:      gw,
		opts:    opts,
		state:   ViewState{DarkMode: opts.DarkMode, Expanded: map[int64]bool{}},
		loadCtx: context.Background(),
	}
	s.debounce = newDebouncer(opts.Debounce, s.debouncedLoad)
	return s
}

// Start schedules the first load. Debounced loads run with ctx.
func (s *Shell) Start(ctx context.Context) {
	s.mu.Lock()
	s.loadCtx = ctx
	s.mu.Unlock()
	s.debounce.Trigger()
}

// Close stops the debounce timer. No debounced load fires afterwards.
func (s *Shell) Close() {
	s.debounce.Stop()
}

// State returns the current view state.
func (s *Shell) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a to the state. A filter change restarts the debounce
// window instead of loading right away.
func (s *Shell) Dispatch(a Action) ViewState {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	s.mu.Unlock()

	s.notify(next)
	if FilterChanged(prev, next) {
		s.debounce.Trigger()
	}
	return next
}

func (s *Shell) debouncedLoad() {
	s.mu.Lock()
	ctx := s.loadCtx
	s.mu.Unlock()
	_ = s.Load(ctx)
}

// Load fetches the filtered questions and all categories together and
// replaces both collections. On failure the state is left as it was.
// Loads are not serialized; the last one to finish wins.
func (s *Shell) Load(ctx context.Context) error {
	filter := s.State().Filter

	var (
		qnas       []qna.Qna
		categories []qna.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		qnas, err = s.gw.ListQnas(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.gw.ListCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.opts.Logger.Printf("reload failed: %v", err)
		return err
	}

	s.mu.Lock()
	s.state = Reduce(s.state, Loaded{Qnas: qnas, Categories: categories})
	next := s.state
	s.mu.Unlock()

	s.notify(next)
	if s.opts.OnLoad != nil {
		s.opts.OnLoad(next)
	}
	return nil
}

// reload runs Load after a mutation; its failure is only logged.
func (s *Shell) reload(ctx context.Context) {
	_ = s.Load(ctx)
}

// SaveQna saves the open draft: POST when it is new, PUT otherwise. Only
// the five form fields are sent. The dialog closes on success.
func (s *Shell) SaveQna(ctx context.Context) error {
	draft := s.State().QnaModal
	if draft == nil {
		return nil
	}

	var err error
	if draft.IsNew() {
		_, err = s.gw.CreateQna(ctx, draft.Base())
	} else {
		_, err = s.gw.UpdateQna(ctx, draft.ID, draft.Base())
	}
	if err != nil {
		return err
	}

	s.Dispatch(CloseQnaModal{})
	s.reload(ctx)
	return nil
}

// DeleteQna deletes question id after confirmation.
func (s *Shell) DeleteQna(ctx context.Context, id int64) error {
	if !s.confirm(PromptDeleteQna) {
		return errors.NewDeclined(PromptDeleteQna)
	}
	if err := s.gw.DeleteQna(ctx, id); err != nil {
		return err
	}
	s.reload(ctx)
	return nil
}

// ToggleBookmark lets the backend flip the bookmark of id.
func (s *Shell) ToggleBookmark(ctx context.Context, id int64) error {
	if err := s.gw.ToggleBookmark(ctx, id); err != nil {
		return err
	}
	s.reload(ctx)
	return nil
}

// ToggleDone sends the negation of current as the new done flag.
func (s *Shell) ToggleDone(ctx context.Context, id int64, current bool) error {
	if err := s.gw.MarkDone(ctx, id, !current); err != nil {
		return err
	}
	s.reload(ctx)
	return nil
}

// UpdateCard persists study fields reported by a card. The loaded question
// is sent back whole with u applied.
func (s *Shell) UpdateCard(ctx context.Context, id int64, u qna.CardUpdate) error {
	if u.Empty() {
		return nil
	}
	q, ok := qna.Find(s.State().Qnas, id)
	if !ok {
		return errors.NewNotFound(fmt.Sprintf("qna %d", id))
	}
	if _, err := s.gw.UpdateQna(ctx, id, q.Apply(u)); err != nil {
		return err
	}
	s.reload(ctx)
	return nil
}

// SaveCategory adds or renames a category from the form. An empty name
// does nothing.
func (s *Shell) SaveCategory(ctx context.Context) error {
	form := s.State().CategoryModal
	if strings.TrimSpace(form.Name) == "" {
		return nil
	}

	var err error
	if form.Editing != nil {
		_, err = s.gw.UpdateCategory(ctx, form.Editing.ID, form.Name)
	} else {
		_, err = s.gw.CreateCategory(ctx, form.Name)
	}
	if err != nil {
		return err
	}

	s.Dispatch(ResetCategoryForm{})
	s.reload(ctx)
	return nil
}

// DeleteCategory deletes category id after confirmation. The backend
// removes its questions.
func (s *Shell) DeleteCategory(ctx context.Context, id int64) error {
	if !s.confirm(PromptDeleteCategory) {
		return errors.NewDeclined(PromptDeleteCategory)
	}
	if err := s.gw.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.reload(ctx)
	return nil
}

// Export downloads a full dump into dir as qna_backup.json or .csv and
// returns the written path.
func (s *Shell) Export(ctx context.Context, f gateway.Format, dir string) (string, error) {
	data, err := s.gw.Export(ctx, f)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, gateway.ExportFilename(f))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.NewInternal(fmt.Errorf("write export: %w", err))
	}
	return path, nil
}

// Import uploads the file at path unvalidated. Only success is reported;
// the collections are not reloaded.
func (s *Shell) Import(ctx context.Context, f gateway.Format, path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot open import file: %v", err))
	}
	defer file.Close()
	return s.gw.Import(ctx, f, filepath.Base(path), file)
}

// CardCallbacks wires a card for q to this shell. Failures are logged; a
// declined confirmation is not a failure.
func (s *Shell) CardCallbacks(ctx context.Context, q qna.Qna) card.Callbacks {
	return card.Callbacks{
		OnToggleExpand: func() { s.Dispatch(ToggleExpand{ID: q.ID}) },
		OnEdit:         func() { s.Dispatch(OpenEditQna{Qna: q}) },
		OnDelete: func() {
			s.logErr("delete question", s.DeleteQna(ctx, q.ID))
		},
		OnToggleBookmark: func() {
			s.logErr("toggle bookmark", s.ToggleBookmark(ctx, q.ID))
		},
		OnToggleDone: func() {
			s.logErr("toggle done", s.ToggleDone(ctx, q.ID, q.IsDone))
		},
		OnUpdateCard: func(u qna.CardUpdate) {
			s.logErr("update card", s.UpdateCard(ctx, q.ID, u))
		},
	}
}

func (s *Shell) confirm(prompt string) bool {
	if s.opts.Confirmer == nil {
		return true
	}
	return s.opts.Confirmer.Confirm(prompt)
}

func (s *Shell) notify(state ViewState) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(state)
	}
}

func (s *Shell) logErr(op string, err error) {
	if err == nil || errors.Is(err, errors.ErrDeclined) {
		return
	}
	s.opts.Logger.Printf("%s: %v", op, err)
}
