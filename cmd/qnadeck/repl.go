package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/qnadeck/internal/card"
	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/qna"
	"github.com/hpungsan/qnadeck/internal/shell"
)

const replHelp = `Commands:
  list                        show the loaded questions
  show <id>                   show one card
  search <text>               filter by text (empty clears)
  cat <id|all>                filter by category
  done-filter <true|false|all>
  bookmark-filter <true|false|all>
  clear                       clear all filters
  dark                        toggle dark mode
  expand <id>                 expand or collapse a card's answer
  add                         start a new question
  edit <id>                   edit a question
  save                        submit the open question
  delete <id>                 delete a question
  bookmark <id>               toggle bookmark
  done <id>                   toggle done
  cat-add <name>              add a category
  cat-rename <id> <name>      rename a category
  cat-delete <id>             delete a category and its questions
  study <id>                  start or stop the study timer
  rate <id> <1-5>             rate your recall while studying
  flashcard <id>              toggle flashcard mode
  flip <id>                   reveal or hide the answer in flashcard mode
  code <id>                   toggle the code-only view
  copy <id> <n>               copy code block n to the clipboard
  read <id>                   read the answer aloud (again to stop)
  note <id> <text>            save notes
  export <json|csv> [dir]     download a backup
  import <json|csv> <path>    upload a backup
  quit`

// syncWriter serializes writes from the prompt loop and background loads.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// repl is one interactive shell session.
type repl struct {
	ctx  context.Context
	sh   *shell.Shell
	cfg  *config.Config
	in   *bufio.Scanner
	out  io.Writer
	opts card.Options

	mu    sync.Mutex
	cards map[int64]*card.Card
}

// runREPL reads commands from in until quit or EOF.
func runREPL(ctx context.Context, gw shell.Gateway, cfg *config.Config, in io.Reader, out io.Writer) error {
	r := newREPL(ctx, gw, cfg, in, out)
	defer r.close()

	fmt.Fprintln(r.out, "qnadeck shell. Type 'help' for commands.")
	r.sh.Start(ctx)

	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		if quit := r.exec(r.in.Text()); quit {
			return nil
		}
	}
}

func newREPL(ctx context.Context, gw shell.Gateway, cfg *config.Config, in io.Reader, out io.Writer) *repl {
	w := &syncWriter{w: out}
	logger := log.New(w, "error: ", 0)
	r := &repl{
		ctx:   ctx,
		cfg:   cfg,
		in:    bufio.NewScanner(in),
		out:   w,
		cards: map[int64]*card.Card{},
		opts: card.Options{
			Speaker:      card.NewExecSpeaker(cfg.SpeechCommand),
			Clipboard:    card.NewExecClipboard(cfg.ClipboardCommand),
			Logger:       logger,
			PreviewChars: cfg.PreviewChars,
		},
	}
	r.sh = shell.New(gw, shell.Options{
		Debounce:  cfg.Debounce(),
		Confirmer: shell.ConfirmFunc(r.confirm),
		Logger:    logger,
		OnLoad:    r.onLoad,
		DarkMode:  cfg.Dark(),
	})
	return r
}

func (r *repl) close() {
	r.sh.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		c.Close()
	}
}

// exec runs one command line and reports whether the session should end.
func (r *repl) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "list":
		r.printList(r.sh.State())

	case "search":
		r.sh.Dispatch(shell.SetSearch{Term: rest})
	case "cat":
		err = r.categoryFilter(args)
	case "done-filter":
		err = r.triFilter(args, func(v *bool) shell.Action { return shell.SetDoneFilter{Done: v} })
	case "bookmark-filter":
		err = r.triFilter(args, func(v *bool) shell.Action { return shell.SetBookmarkFilter{Bookmarked: v} })
	case "clear":
		r.sh.Dispatch(shell.ClearFilters{})
	case "dark":
		if r.sh.Dispatch(shell.ToggleDarkMode{}).DarkMode {
			fmt.Fprintln(r.out, "dark mode on")
		} else {
			fmt.Fprintln(r.out, "dark mode off")
		}

	case "add":
		r.sh.Dispatch(shell.OpenCreateQna{})
		err = r.fillDraft()
	case "edit":
		err = r.withCard(args, func(c *card.Card) error {
			c.Edit()
			return r.fillDraft()
		})
	case "save":
		err = r.save()

	case "show":
		err = r.withCard(args, func(c *card.Card) error { r.printCard(c); return nil })
	case "expand":
		err = r.withCard(args, func(c *card.Card) error { c.ToggleExpand(); r.printCard(c); return nil })
	case "delete":
		err = r.withCard(args, func(c *card.Card) error { c.Delete(); return nil })
	case "bookmark":
		err = r.withCard(args, func(c *card.Card) error { c.ToggleBookmark(); return nil })
	case "done":
		err = r.withCard(args, func(c *card.Card) error { c.ToggleDone(); return nil })

	case "cat-add":
		err = r.saveCategory(nil, rest)
	case "cat-rename":
		err = r.renameCategory(args)
	case "cat-delete":
		var id int64
		if id, err = parseArgID(args, 0); err == nil {
			err = r.sh.DeleteCategory(r.ctx, id)
		}

	case "study":
		err = r.withCard(args, r.study)
	case "rate":
		err = r.rate(args)
	case "flashcard":
		err = r.withCard(args, func(c *card.Card) error { c.ToggleFlashcard(); r.printCard(c); return nil })
	case "flip":
		err = r.withCard(args, func(c *card.Card) error { c.Flip(); r.printCard(c); return nil })
	case "code":
		err = r.withCard(args, func(c *card.Card) error {
			if !c.ToggleCodeView() && len(c.CodeBlocks()) == 0 {
				return errors.NewInvalidRequest("this answer has no code")
			}
			r.printCard(c)
			return nil
		})
	case "copy":
		err = r.copyCode(args)
	case "read":
		err = r.withCard(args, func(c *card.Card) error {
			if c.ToggleSpeech(r.ctx) {
				fmt.Fprintln(r.out, "reading...")
			} else {
				fmt.Fprintln(r.out, "stopped")
			}
			return nil
		})
	case "note":
		err = r.note(args)

	case "export":
		err = r.export(args)
	case "import":
		err = r.importFile(args)

	default:
		err = errors.NewInvalidRequest(fmt.Sprintf("unknown command %q (try 'help')", cmd))
	}

	if err != nil {
		r.printErr(err)
	}
	return false
}

// onLoad refreshes open cards from the new collection and re-renders.
// Cards whose question left the list are closed, which stops their speech
// and study timer.
func (r *repl) onLoad(state shell.ViewState) {
	r.mu.Lock()
	for id, c := range r.cards {
		q, ok := qna.Find(state.Qnas, id)
		if !ok {
			c.Close()
			delete(r.cards, id)
			continue
		}
		c.SetQna(q)
		c.SetCallbacks(r.sh.CardCallbacks(r.ctx, q))
	}
	r.mu.Unlock()
	r.printList(state)
}

// card returns the card for a loaded question, creating it on first use.
func (r *repl) card(id int64) (*card.Card, error) {
	state := r.sh.State()
	q, ok := qna.Find(state.Qnas, id)
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("qna %d (not in the current list)", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cards[id]; ok {
		return c, nil
	}
	opts := r.opts
	opts.CategoryName = state.CategoryName(q.CategoryID)
	opts.Related = state.Qnas
	c := card.New(q, r.sh.CardCallbacks(r.ctx, q), opts)
	r.cards[id] = c
	return c, nil
}

func (r *repl) withCard(args []string, fn func(*card.Card) error) error {
	id, err := parseArgID(args, 0)
	if err != nil {
		return err
	}
	c, err := r.card(id)
	if err != nil {
		return err
	}
	return fn(c)
}

// parseArgID parses args[i] as an id.
func parseArgID(args []string, i int) (int64, error) {
	if i >= len(args) {
		return 0, errors.NewInvalidRequest("id is required")
	}
	return parseID(args[i])
}

func (r *repl) categoryFilter(args []string) error {
	if len(args) == 0 || args[0] == "all" {
		r.sh.Dispatch(shell.SetCategoryFilter{ID: nil})
		return nil
	}
	id, err := parseArgID(args, 0)
	if err != nil {
		return err
	}
	r.sh.Dispatch(shell.SetCategoryFilter{ID: &id})
	return nil
}

func (r *repl) triFilter(args []string, action func(*bool) shell.Action) error {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	}
	v, err := qna.ParseTriState(raw)
	if err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	r.sh.Dispatch(action(v))
	return nil
}

// fillDraft prompts for the five form fields of the open draft. A blank
// answer keeps the current value.
func (r *repl) fillDraft() error {
	draft := r.sh.State().QnaModal
	if draft == nil {
		return errors.NewInvalidRequest("no question is open")
	}
	in := draft.Base()

	if v, ok := r.ask(fmt.Sprintf("Question [%s]: ", in.Question)); ok && v != "" {
		in.Question = v
	}
	fmt.Fprintln(r.out, "Answer (markdown, end with a line containing only '.'; blank keeps it):")
	if answer, ok := r.readBlock(); ok && answer != "" {
		in.Answer = answer
	}
	current := ""
	if in.CategoryID != nil {
		current = strconv.FormatInt(*in.CategoryID, 10)
	}
	if v, ok := r.ask(fmt.Sprintf("Category id [%s] ('-' for none): ", current)); ok && v != "" {
		if v == "-" {
			in.CategoryID = nil
		} else {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errors.NewInvalidRequest(fmt.Sprintf("invalid category id %q", v))
			}
			in.CategoryID = &id
		}
	}

	r.sh.Dispatch(shell.EditQnaDraft{Fields: in})
	fmt.Fprintln(r.out, "draft ready; 'save' to submit")
	return nil
}

func (r *repl) save() error {
	draft := r.sh.State().QnaModal
	if draft == nil {
		return errors.NewInvalidRequest("nothing to save; use 'add' or 'edit' first")
	}
	if strings.TrimSpace(draft.Question) == "" {
		return errors.NewInvalidRequest("question is required")
	}
	if err := r.sh.SaveQna(r.ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "saved")
	return nil
}

func (r *repl) saveCategory(editing *qna.Category, name string) error {
	r.sh.Dispatch(shell.OpenCategoryModal{})
	if editing != nil {
		r.sh.Dispatch(shell.EditCategory{Category: *editing})
	} else {
		r.sh.Dispatch(shell.ResetCategoryForm{})
	}
	r.sh.Dispatch(shell.SetCategoryName{Name: name})
	if strings.TrimSpace(name) == "" {
		return errors.NewInvalidRequest("category name is required")
	}
	return r.sh.SaveCategory(r.ctx)
}

func (r *repl) renameCategory(args []string) error {
	id, err := parseArgID(args, 0)
	if err != nil {
		return err
	}
	for _, c := range r.sh.State().Categories {
		if c.ID == id {
			return r.saveCategory(&c, strings.Join(args[1:], " "))
		}
	}
	return errors.NewNotFound(fmt.Sprintf("category %d", id))
}

func (r *repl) study(c *card.Card) error {
	if c.Studying() {
		elapsed := c.Elapsed()
		c.StopStudy()
		fmt.Fprintf(r.out, "study stopped after %s\n", qna.FormatDuration(elapsed))
		return nil
	}
	c.StartStudy()
	fmt.Fprintln(r.out, "studying; 'study' again to stop")
	return nil
}

func (r *repl) rate(args []string) error {
	if len(args) < 2 {
		return errors.NewInvalidRequest("usage: rate <id> <1-5>")
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid rating %q", args[1]))
	}
	return r.withCard(args, func(c *card.Card) error {
		if err := c.Rate(rating); err != nil {
			return err
		}
		score, _ := qna.RatingScore(rating)
		fmt.Fprintf(r.out, "rated %d; next review in %d days\n", rating, qna.ReviewInterval(score))
		return nil
	})
}

func (r *repl) copyCode(args []string) error {
	if len(args) < 2 {
		return errors.NewInvalidRequest("usage: copy <id> <n>")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid block number %q", args[1]))
	}
	return r.withCard(args, func(c *card.Card) error {
		if err := c.CopyCode(r.ctx, n); err != nil {
			return err
		}
		if c.Copied(n) {
			fmt.Fprintln(r.out, "Copied!")
		}
		return nil
	})
}

func (r *repl) note(args []string) error {
	return r.withCard(args, func(c *card.Card) error {
		c.SetNoteDraft(strings.Join(args[1:], " "))
		if c.CommitNotes() {
			fmt.Fprintln(r.out, "notes saved")
		} else {
			fmt.Fprintln(r.out, "notes unchanged")
		}
		return nil
	})
}

func (r *repl) export(args []string) error {
	if len(args) == 0 {
		return errors.NewInvalidRequest("usage: export <json|csv> [dir]")
	}
	format, err := gateway.ParseFormat(args[0])
	if err != nil {
		return err
	}
	dir := r.cfg.ExportDir
	if len(args) > 1 {
		dir = args[1]
	}
	path, err := r.sh.Export(r.ctx, format, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "exported to %s\n", path)
	return nil
}

func (r *repl) importFile(args []string) error {
	if len(args) < 2 {
		return errors.NewInvalidRequest("usage: import <json|csv> <path>")
	}
	format, err := gateway.ParseFormat(args[0])
	if err != nil {
		return err
	}
	if _, err := r.sh.Import(r.ctx, format, args[1]); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "import successful")
	return nil
}

// confirm asks a [y/N] question on the same input as the commands.
func (r *repl) confirm(prompt string) bool {
	line, ok := r.ask(prompt + " [y/N] ")
	return ok && isYes(line)
}

func (r *repl) ask(prompt string) (string, bool) {
	fmt.Fprint(r.out, prompt)
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

// readBlock reads lines up to a lone "." or a blank first line.
func (r *repl) readBlock() (string, bool) {
	var lines []string
	for r.in.Scan() {
		line := r.in.Text()
		if line == "." || (len(lines) == 0 && strings.TrimSpace(line) == "") {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), len(lines) > 0
}

func (r *repl) printErr(err error) {
	var qErr *errors.QnaError
	if stderrors.As(err, &qErr) {
		if qErr.Code == errors.ErrDeclined {
			fmt.Fprintln(r.out, "cancelled")
			return
		}
		fmt.Fprintf(r.out, "[%s] %s\n", qErr.Code, qErr.Message)
		return
	}
	fmt.Fprintf(r.out, "error: %v\n", err)
}

func (r *repl) printList(state shell.ViewState) {
	var b strings.Builder
	if len(state.Qnas) == 0 {
		b.WriteString("(no questions)\n")
	}
	for _, q := range state.Qnas {
		r.mu.Lock()
		c, ok := r.cards[q.ID]
		r.mu.Unlock()
		if !ok {
			opts := r.opts
			opts.CategoryName = state.CategoryName(q.CategoryID)
			c = card.New(q, card.Callbacks{}, opts)
		}
		writeCard(&b, c.View(state.IsExpanded(q.ID), state.Filter.Search, time.Now()))
	}
	_, _ = io.WriteString(r.out, b.String())
}

func (r *repl) printCard(c *card.Card) {
	state := r.sh.State()
	id := c.Qna().ID
	var b strings.Builder
	writeCard(&b, c.View(state.IsExpanded(id), state.Filter.Search, time.Now()))
	_, _ = io.WriteString(r.out, b.String())
}

// writeCard renders v as plain text. Search matches are bracketed.
func writeCard(b *strings.Builder, v card.CardView) {
	fmt.Fprintf(b, "#%d ", v.ID)
	for _, s := range v.Question {
		if s.Match {
			fmt.Fprintf(b, "[%s]", s.Text)
		} else {
			b.WriteString(s.Text)
		}
	}
	b.WriteString("\n")

	var tags []string
	if v.Category != "" {
		tags = append(tags, v.Category)
	}
	if v.Done {
		tags = append(tags, "done")
	}
	if v.Bookmarked {
		tags = append(tags, "bookmarked")
	}
	if v.HasCode {
		tags = append(tags, "code")
	}
	if v.Due {
		tags = append(tags, "due")
	}
	if v.Difficulty != "" {
		tags = append(tags, v.Difficulty)
	}
	if v.ReadMinutes > 0 {
		tags = append(tags, fmt.Sprintf("%d min read", v.ReadMinutes))
	}
	if len(tags) > 0 {
		fmt.Fprintf(b, "    %s\n", strings.Join(tags, " · "))
	}

	switch v.Body {
	case card.BodyNone:
		b.WriteString("    (no answer yet)\n")
	case card.BodyHidden:
		fmt.Fprintf(b, "    (answer hidden; 'flip %d' to reveal)\n", v.ID)
	case card.BodyCode:
		for i, block := range v.CodeBlocks {
			fmt.Fprintf(b, "    [%d] %s %s\n", i, block.Kind, block.Language)
			for _, line := range strings.Split(block.Code, "\n") {
				fmt.Fprintf(b, "        %s\n", line)
			}
			if v.Copied == i {
				b.WriteString("        Copied!\n")
			}
		}
	default:
		for _, line := range strings.Split(v.Text, "\n") {
			fmt.Fprintf(b, "    %s\n", line)
		}
		if v.Faded {
			b.WriteString("    ...\n")
		}
	}
	if v.CanExpand {
		fmt.Fprintf(b, "    ['expand %d': %s]\n", v.ID, v.ExpandLabel)
	}
	if v.Studying {
		fmt.Fprintf(b, "    studying %s", v.Timer)
		if v.CanRate {
			b.WriteString(" (rate 1-5)")
		}
		b.WriteString("\n")
	}
	if v.HasNotes {
		fmt.Fprintf(b, "    notes: %s\n", v.NoteDraft)
	}
}
