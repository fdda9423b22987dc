package main

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/qnadeck/internal/card"
	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/mcp"
	"github.com/hpungsan/qnadeck/internal/qna"
	"github.com/hpungsan/qnadeck/internal/shell"
	"github.com/hpungsan/qnadeck/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(gw shell.Gateway, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "qnadeck",
		Usage:   "Study deck for a Q&A backend",
		Version: Version,
		Commands: []*cli.Command{
			listCmd(gw),
			showCmd(gw, cfg),
			addCmd(gw),
			editCmd(gw),
			deleteCmd(gw),
			bookmarkCmd(gw),
			doneCmd(gw),
			categoriesCmd(gw),
			categoryCmd(gw),
			exportCmd(gw, cfg),
			importCmd(gw),
			cardExportCmd(gw, cfg),
			shellCmd(gw, cfg),
			serveCmd(gw, cfg),
			mcpCmd(gw, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// listCmd creates the list command.
func listCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List questions",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "category", Aliases: []string{"c"}, Usage: "Category id"},
			&cli.StringFlag{Name: "done", Usage: "Filter by done: true|false"},
			&cli.StringFlag{Name: "bookmark", Usage: "Filter by bookmark: true|false"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Search text"},
			&cli.BoolFlag{Name: "due", Usage: "Only questions due for review"},
		},
		Action: func(c *cli.Context) error {
			filter := qna.Filter{Search: c.String("search")}
			if c.IsSet("category") {
				id := c.Int64("category")
				filter.CategoryID = &id
			}
			var err error
			if filter.Done, err = qna.ParseTriState(c.String("done")); err != nil {
				return outputError(errors.NewInvalidRequest("done: " + err.Error()))
			}
			if filter.Bookmarked, err = qna.ParseTriState(c.String("bookmark")); err != nil {
				return outputError(errors.NewInvalidRequest("bookmark: " + err.Error()))
			}

			items, err := gw.ListQnas(c.Context, filter)
			if err != nil {
				return outputError(err)
			}
			categories, err := gw.ListCategories(c.Context)
			if err != nil {
				return outputError(err)
			}

			now := time.Now()
			out := mcp.ListOutput{Items: make([]mcp.ListItem, 0, len(items))}
			for _, q := range items {
				due := qna.Due(q, now)
				if c.Bool("due") && !due {
					continue
				}
				out.Items = append(out.Items, mcp.ListItem{
					Qna:      q,
					Category: qna.CategoryName(categories, q.CategoryID),
					Due:      due,
					HasCode:  qna.HasCode(q.Answer),
				})
			}
			out.Count = len(out.Items)
			return outputJSON(c.App.Writer, out)
		},
	}
}

// showCmd creates the show command.
func showCmd(gw shell.Gateway, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a question as a card",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "flashcard", Usage: "Hide the answer"},
			&cli.BoolFlag{Name: "code", Usage: "Show only the answer's code"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Highlight this text in the question"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			cd, err := loadCard(c.Context, gw, cfg, id)
			if err != nil {
				return outputError(err)
			}
			defer cd.Close()

			if c.Bool("flashcard") {
				cd.ToggleFlashcard()
			}
			if c.Bool("code") {
				cd.ToggleCodeView()
			}
			cd.ToggleRelated()
			cd.ToggleAnalytics()
			return outputJSON(c.App.Writer, cd.View(true, c.String("search"), time.Now()))
		},
	}
}

// addCmd creates the add command.
func addCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a question (answer from --answer or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "Question text", Required: true},
			&cli.StringFlag{Name: "answer", Aliases: []string{"a"}, Usage: "Answer markdown"},
			&cli.Int64Flag{Name: "category", Aliases: []string{"c"}, Usage: "Category id"},
			&cli.BoolFlag{Name: "done", Usage: "Mark as done"},
			&cli.BoolFlag{Name: "bookmark", Usage: "Bookmark it"},
		},
		Action: func(c *cli.Context) error {
			in := qna.QnaInput{
				Question: strings.TrimSpace(c.String("question")),
				Answer:   c.String("answer"),
				IsDone:   c.Bool("done"),
				Bookmark: c.Bool("bookmark"),
			}
			if in.Question == "" {
				return outputError(errors.NewInvalidRequest("question is required"))
			}
			if !c.IsSet("answer") {
				text, err := readPiped(c)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				in.Answer = text
			}
			if c.IsSet("category") {
				id := c.Int64("category")
				in.CategoryID = &id
			}

			created, err := gw.CreateQna(c.Context, in)
			if err != nil {
				return outputError(err)
			}
			if created == nil {
				return outputJSON(c.App.Writer, map[string]any{"created": true})
			}
			return outputJSON(c.App.Writer, created)
		},
	}
}

// editCmd creates the edit command. Only the five base fields are sent.
func editCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit a question (answer from --answer or stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "New question text"},
			&cli.StringFlag{Name: "answer", Aliases: []string{"a"}, Usage: "New answer markdown"},
			&cli.Int64Flag{Name: "category", Aliases: []string{"c"}, Usage: "New category id"},
			&cli.BoolFlag{Name: "done", Usage: "Set done"},
			&cli.BoolFlag{Name: "bookmark", Usage: "Set bookmark"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			q, err := findQna(c.Context, gw, id)
			if err != nil {
				return outputError(err)
			}

			in := q.Base()
			if c.IsSet("question") {
				in.Question = c.String("question")
			}
			if c.IsSet("answer") {
				in.Answer = c.String("answer")
			} else {
				text, err := readPiped(c)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if text != "" {
					in.Answer = text
				}
			}
			if c.IsSet("category") {
				cat := c.Int64("category")
				in.CategoryID = &cat
			}
			if c.IsSet("done") {
				in.IsDone = c.Bool("done")
			}
			if c.IsSet("bookmark") {
				in.Bookmark = c.Bool("bookmark")
			}

			updated, err := gw.UpdateQna(c.Context, id, in)
			if err != nil {
				return outputError(err)
			}
			if updated == nil {
				return outputJSON(c.App.Writer, map[string]any{"id": id, "updated": true})
			}
			return outputJSON(c.App.Writer, updated)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a question",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("yes") && !confirm(c, shell.PromptDeleteQna) {
				return outputError(errors.NewDeclined(shell.PromptDeleteQna))
			}
			if err := gw.DeleteQna(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"id": id, "deleted": true})
		},
	}
}

// bookmarkCmd creates the bookmark command. The backend flips the flag.
func bookmarkCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:      "bookmark",
		Usage:     "Toggle a question's bookmark",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			if err := gw.ToggleBookmark(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"id": id, "toggled": true})
		},
	}
}

// doneCmd creates the done command. The negated current value is sent.
func doneCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:      "done",
		Usage:     "Toggle a question's done flag",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			q, err := findQna(c.Context, gw, id)
			if err != nil {
				return outputError(err)
			}
			if err := gw.MarkDone(c.Context, id, !q.IsDone); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"id": id, "is_done": !q.IsDone})
		},
	}
}

// categoriesCmd creates the categories command.
func categoriesCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "List categories",
		Action: func(c *cli.Context) error {
			categories, err := gw.ListCategories(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"items": categories, "count": len(categories)})
		},
	}
}

// categoryCmd creates the category command with add, rename and delete.
func categoryCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:  "category",
		Usage: "Manage categories",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a category",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					created, err := gw.CreateCategory(c.Context, strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return outputError(err)
					}
					if created == nil {
						return outputJSON(c.App.Writer, map[string]any{"created": true})
					}
					return outputJSON(c.App.Writer, created)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a category",
				ArgsUsage: "<id> <name>",
				Action: func(c *cli.Context) error {
					id, err := argID(c, 0)
					if err != nil {
						return outputError(err)
					}
					name := strings.Join(c.Args().Tail(), " ")
					updated, err := gw.UpdateCategory(c.Context, id, name)
					if err != nil {
						return outputError(err)
					}
					if updated == nil {
						return outputJSON(c.App.Writer, qna.Category{ID: id, Name: strings.TrimSpace(name)})
					}
					return outputJSON(c.App.Writer, updated)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a category and its questions",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
				},
				Action: func(c *cli.Context) error {
					id, err := argID(c, 0)
					if err != nil {
						return outputError(err)
					}
					if !c.Bool("yes") && !confirm(c, shell.PromptDeleteCategory) {
						return outputError(errors.NewDeclined(shell.PromptDeleteCategory))
					}
					if err := gw.DeleteCategory(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"id": id, "deleted": true})
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(gw shell.Gateway, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Download a full backup as qna_backup.json or qna_backup.csv",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "json|csv"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Output directory (default: export_dir or .)"},
		},
		Action: func(c *cli.Context) error {
			format, err := gateway.ParseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}
			dir := c.String("dir")
			if dir == "" && cfg != nil {
				dir = cfg.ExportDir
			}

			sh := shell.New(gw, shell.Options{})
			defer sh.Close()
			path, err := sh.Export(c.Context, format, dir)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"path": path, "format": format})
		},
	}
}

// importCmd creates the import command.
func importCmd(gw shell.Gateway) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Upload a backup file to the backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "json|csv"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "File to upload", Required: true},
		},
		Action: func(c *cli.Context) error {
			format, err := gateway.ParseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			sh := shell.New(gw, shell.Options{})
			defer sh.Close()
			result, err := sh.Import(c.Context, format, c.String("path"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"imported": true, "format": format, "result": result})
		},
	}
}

// cardExportCmd creates the card-export command.
func cardExportCmd(gw shell.Gateway, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "card-export",
		Usage:     "Export one question as markdown",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Write qna-<id>.md here instead of stdout"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0)
			if err != nil {
				return outputError(err)
			}
			cd, err := loadCard(c.Context, gw, cfg, id)
			if err != nil {
				return outputError(err)
			}
			defer cd.Close()

			filename, content, err := cd.Export(card.ExportMarkdown)
			if err != nil {
				return outputError(err)
			}
			dir := c.String("dir")
			if dir == "" {
				_, err := io.WriteString(c.App.Writer, content+"\n")
				return err
			}
			path := filepath.Join(dir, filename)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(c.App.Writer, map[string]any{"id": id, "path": path})
		},
	}
}

// shellCmd creates the interactive shell command.
func shellCmd(gw shell.Gateway, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Browse and study interactively",
		Action: func(c *cli.Context) error {
			return runREPL(c.Context, gw, cfg, c.App.Reader, c.App.Writer)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(gw shell.Gateway, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port <= 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", port)))
			}
			srv := web.NewServer(gw, cfg, Version, c.String("bind"), port)
			return web.Run(srv)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(gw shell.Gateway, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(gw, cfg, Version)
		},
	}
}

// Helper functions

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var qErr *errors.QnaError
	if stderrors.As(err, &qErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", qErr.Code, qErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// argID parses positional argument i as a question or category id.
func argID(c *cli.Context, i int) (int64, error) {
	return parseID(c.Args().Get(i))
}

// parseID parses a positive id.
func parseID(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.NewInvalidRequest("id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

// findQna loads question id. The backend has no single-item read.
func findQna(ctx context.Context, gw shell.Gateway, id int64) (qna.Qna, error) {
	items, err := gw.ListQnas(ctx, qna.Filter{})
	if err != nil {
		return qna.Qna{}, err
	}
	q, ok := qna.Find(items, id)
	if !ok {
		return qna.Qna{}, errors.NewNotFound(fmt.Sprintf("qna %d", id))
	}
	return q, nil
}

// loadCard builds a read-only card for question id.
func loadCard(ctx context.Context, gw shell.Gateway, cfg *config.Config, id int64) (*card.Card, error) {
	items, err := gw.ListQnas(ctx, qna.Filter{})
	if err != nil {
		return nil, err
	}
	q, ok := qna.Find(items, id)
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("qna %d", id))
	}
	categories, err := gw.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	opts := card.Options{
		CategoryName: qna.CategoryName(categories, q.CategoryID),
		Related:      items,
	}
	if cfg != nil {
		opts.PreviewChars = cfg.PreviewChars
	}
	return card.New(q, card.Callbacks{}, opts), nil
}

// readPiped reads the app's input when it is piped. A terminal yields "".
func readPiped(c *cli.Context) (string, error) {
	if f, ok := c.App.Reader.(*os.File); ok && !fileHasData(f) {
		return "", nil
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// fileHasData returns true if f is piped data (not a terminal).
func fileHasData(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// confirm asks prompt on the error stream and reads y/N from the app's input.
func confirm(c *cli.Context, prompt string) bool {
	fmt.Fprintf(c.App.ErrWriter, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
	return isYes(line)
}

// isYes reports whether an answer line accepts a [y/N] prompt.
func isYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
