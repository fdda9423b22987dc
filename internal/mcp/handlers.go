package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/errors"
	"github.com/hpungsan/qnadeck/internal/gateway"
	"github.com/hpungsan/qnadeck/internal/qna"
	"github.com/hpungsan/qnadeck/internal/shell"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	gw  shell.Gateway
	cfg *config.Config
	now func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(gw shell.Gateway, cfg *config.Config) *Handlers {
	return &Handlers{gw: gw, cfg: cfg, now: time.Now}
}

// Request types for each tool

// ListRequest represents the arguments for qna_list.
type ListRequest struct {
	CategoryID *int64 `json:"category_id,omitempty"`
	IsDone     *bool  `json:"is_done,omitempty"`
	Bookmark   *bool  `json:"bookmark,omitempty"`
	Search     string `json:"search,omitempty"`
	DueOnly    bool   `json:"due_only,omitempty"`
}

// CreateRequest represents the arguments for qna_create.
type CreateRequest struct {
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	CategoryID *int64 `json:"category_id,omitempty"`
	IsDone     bool   `json:"is_done,omitempty"`
	Bookmark   bool   `json:"bookmark,omitempty"`
}

// UpdateRequest represents the arguments for qna_update.
type UpdateRequest struct {
	ID         int64     `json:"id"`
	Question   *string   `json:"question,omitempty"`
	Answer     *string   `json:"answer,omitempty"`
	CategoryID *int64    `json:"category_id,omitempty"`
	IsDone     *bool     `json:"is_done,omitempty"`
	Bookmark   *bool     `json:"bookmark,omitempty"`
	Difficulty *int      `json:"difficulty,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
}

// IDRequest carries just an id (delete, bookmark, category_delete).
type IDRequest struct {
	ID int64 `json:"id"`
}

// MarkRequest represents the arguments for qna_mark.
type MarkRequest struct {
	ID   int64 `json:"id"`
	Done *bool `json:"done"`
}

// CategoryRequest represents the arguments for category_create/update.
type CategoryRequest struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// ExportRequest represents the arguments for bulk_export.
type ExportRequest struct {
	Format string `json:"format,omitempty"`
	Dir    string `json:"dir,omitempty"`
}

// ImportRequest represents the arguments for bulk_import.
type ImportRequest struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// ScheduleRequest represents the arguments for card_schedule.
type ScheduleRequest struct {
	ID     int64 `json:"id"`
	Rating int   `json:"rating"`
}

// Output shapes

// ListOutput is the result of qna_list.
type ListOutput struct {
	Items []ListItem `json:"items"`
	Count int        `json:"count"`
}

// ListItem is a question with its resolved category name.
type ListItem struct {
	qna.Qna
	Category string `json:"category,omitempty"`
	Due      bool   `json:"due"`
	HasCode  bool   `json:"has_code"`
}

// ScheduleOutput is the result of card_schedule.
type ScheduleOutput struct {
	ID               int64         `json:"id"`
	PerformanceScore int           `json:"performance_score"`
	IntervalDays     int           `json:"interval_days"`
	NextReview       qna.Timestamp `json:"next_review"`
}

// Handler implementations

// HandleList handles the qna_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	filter := qna.Filter{
		CategoryID: input.CategoryID,
		Done:       input.IsDone,
		Bookmarked: input.Bookmark,
		Search:     input.Search,
	}
	items, err := h.gw.ListQnas(ctx, filter)
	if err != nil {
		return errorResult(err), nil
	}
	categories, err := h.gw.ListCategories(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	now := h.now()
	out := ListOutput{Items: make([]ListItem, 0, len(items))}
	for _, q := range items {
		due := qna.Due(q, now)
		if input.DueOnly && !due {
			continue
		}
		out.Items = append(out.Items, ListItem{
			Qna:      q,
			Category: qna.CategoryName(categories, q.CategoryID),
			Due:      due,
			HasCode:  qna.HasCode(q.Answer),
		})
	}
	out.Count = len(out.Items)
	return successResult(out)
}

// HandleCreate handles the qna_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Question == "" {
		return errorResult(errors.NewInvalidRequest("question is required")), nil
	}

	created, err := h.gw.CreateQna(ctx, qna.QnaInput{
		Question:   input.Question,
		Answer:     input.Answer,
		IsDone:     input.IsDone,
		Bookmark:   input.Bookmark,
		CategoryID: input.CategoryID,
	})
	if err != nil {
		return errorResult(err), nil
	}
	if created == nil {
		return successResult(map[string]any{"created": true})
	}
	return successResult(created)
}

// HandleUpdate handles the qna_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	if input.Difficulty != nil && (*input.Difficulty < 1 || *input.Difficulty > 5) {
		return errorResult(errors.NewInvalidRequest("difficulty must be between 1 and 5")), nil
	}

	q, err := h.find(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Question != nil {
		q.Question = *input.Question
	}
	if input.Answer != nil {
		q.Answer = *input.Answer
	}
	if input.CategoryID != nil {
		q.CategoryID = input.CategoryID
	}
	if input.IsDone != nil {
		q.IsDone = *input.IsDone
	}
	if input.Bookmark != nil {
		q.Bookmark = *input.Bookmark
	}
	if input.Difficulty != nil {
		q.Difficulty = input.Difficulty
	}
	if input.Tags != nil {
		q.Tags = *input.Tags
	}
	if input.Notes != nil {
		q.Notes = input.Notes
	}

	updated, err := h.gw.UpdateQna(ctx, q.ID, q)
	if err != nil {
		return errorResult(err), nil
	}
	if updated == nil {
		return successResult(q)
	}
	return successResult(updated)
}

// HandleDelete handles the qna_delete tool call. The calling agent is
// its own confirmation.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	if err := h.gw.DeleteQna(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": true})
}

// HandleBookmark handles the qna_bookmark tool call.
func (h *Handlers) HandleBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	if err := h.gw.ToggleBookmark(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "toggled": true})
}

// HandleMark handles the qna_mark tool call.
func (h *Handlers) HandleMark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MarkRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	if input.Done == nil {
		return errorResult(errors.NewInvalidRequest("done is required")), nil
	}
	if err := h.gw.MarkDone(ctx, input.ID, *input.Done); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "is_done": *input.Done})
}

// HandleCategoryList handles the category_list tool call.
func (h *Handlers) HandleCategoryList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	categories, err := h.gw.ListCategories(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"items": categories, "count": len(categories)})
}

// HandleCategoryCreate handles the category_create tool call.
func (h *Handlers) HandleCategoryCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CategoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	created, err := h.gw.CreateCategory(ctx, input.Name)
	if err != nil {
		return errorResult(err), nil
	}
	if created == nil {
		return successResult(map[string]any{"created": true, "name": input.Name})
	}
	return successResult(created)
}

// HandleCategoryUpdate handles the category_update tool call.
func (h *Handlers) HandleCategoryUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CategoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	updated, err := h.gw.UpdateCategory(ctx, input.ID, input.Name)
	if err != nil {
		return errorResult(err), nil
	}
	if updated == nil {
		return successResult(qna.Category{ID: input.ID, Name: input.Name})
	}
	return successResult(updated)
}

// HandleCategoryDelete handles the category_delete tool call.
func (h *Handlers) HandleCategoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	if err := h.gw.DeleteCategory(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": true})
}

// HandleExport handles the bulk_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	format, err := formatArg(input.Format)
	if err != nil {
		return errorResult(err), nil
	}
	dir := input.Dir
	if dir == "" {
		dir = h.cfg.ExportDir
	}
	if dir == "" {
		dir = "."
	}

	data, err := h.gw.Export(ctx, format)
	if err != nil {
		return errorResult(err), nil
	}
	path := filepath.Join(dir, gateway.ExportFilename(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errorResult(errors.NewInternal(fmt.Errorf("write export: %w", err))), nil
	}
	return successResult(map[string]any{"path": path, "format": format, "bytes": len(data)})
}

// HandleImport handles the bulk_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Path == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}
	format, err := formatArg(input.Format)
	if err != nil {
		return errorResult(err), nil
	}

	f, err := os.Open(input.Path)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(fmt.Sprintf("cannot open import file: %v", err))), nil
	}
	defer f.Close()

	result, err := h.gw.Import(ctx, format, filepath.Base(input.Path), f)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"imported": true, "format": format, "result": result})
}

// HandleSchedule handles the card_schedule tool call.
func (h *Handlers) HandleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := requireID(input.ID); err != nil {
		return errorResult(err), nil
	}
	score, err := qna.RatingScore(input.Rating)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	q, err := h.find(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	now := h.now()
	next := qna.NextReview(now, score)
	update := qna.CardUpdate{
		PerformanceScore: &score,
		NextReview:       qna.NewTimestamp(next),
		LastStudied:      qna.NewTimestamp(now),
	}
	if _, err := h.gw.UpdateQna(ctx, q.ID, q.Apply(update)); err != nil {
		return errorResult(err), nil
	}
	return successResult(ScheduleOutput{
		ID:               q.ID,
		PerformanceScore: score,
		IntervalDays:     qna.ReviewInterval(score),
		NextReview:       qna.Timestamp{Time: next},
	})
}

// find loads question id. The backend has no single-item read, so the
// full list is searched.
func (h *Handlers) find(ctx context.Context, id int64) (qna.Qna, error) {
	items, err := h.gw.ListQnas(ctx, qna.Filter{})
	if err != nil {
		return qna.Qna{}, err
	}
	q, ok := qna.Find(items, id)
	if !ok {
		return qna.Qna{}, errors.NewNotFound(fmt.Sprintf("qna %d", id))
	}
	return q, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var qErr *errors.QnaError
	if stderrors.As(err, &qErr) {
		// Keep any wrapping context ("items[2]: ...") in front of the message.
		msg := strings.TrimSuffix(err.Error(), qErr.Error()) + qErr.Message
		errorObj := map[string]any{
			"code":    qErr.Code,
			"message": msg,
			"status":  qErr.Status,
		}
		if qErr.Code != errors.ErrInternal && qErr.Details != nil {
			errorObj["details"] = qErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
