package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("qna_list",
	mcp.WithDescription("List questions. Unset filters are not applied. Answers are returned in full."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("category_id", mcp.Description("Only questions in this category")),
	mcp.WithBoolean("is_done", mcp.Description("Filter by done flag")),
	mcp.WithBoolean("bookmark", mcp.Description("Filter by bookmark flag")),
	mcp.WithString("search", mcp.Description("Free-text search")),
	mcp.WithBoolean("due_only", mcp.Description("Only questions whose next review is due")),
)

var createToolDef = mcp.NewTool("qna_create",
	mcp.WithDescription("Create a question. Answers are markdown."),
	mcp.WithString("question", mcp.Required(), mcp.Description("Question text")),
	mcp.WithString("answer", mcp.Description("Answer in markdown")),
	mcp.WithNumber("category_id", mcp.Description("Category id")),
	mcp.WithBoolean("is_done", mcp.Description("Mark as done")),
	mcp.WithBoolean("bookmark", mcp.Description("Bookmark it")),
)

var updateToolDef = mcp.NewTool("qna_update",
	mcp.WithDescription("Update a question. Omitted fields keep their current value; the question is replaced as a whole."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Question id")),
	mcp.WithString("question", mcp.Description("New question text")),
	mcp.WithString("answer", mcp.Description("New answer in markdown")),
	mcp.WithNumber("category_id", mcp.Description("New category id")),
	mcp.WithBoolean("is_done", mcp.Description("New done flag")),
	mcp.WithBoolean("bookmark", mcp.Description("New bookmark flag")),
	mcp.WithNumber("difficulty", mcp.Description("Difficulty 1-5")),
	mcp.WithArray("tags", mcp.Description("Replacement tags"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("notes", mcp.Description("Personal notes")),
)

var deleteToolDef = mcp.NewTool("qna_delete",
	mcp.WithDescription("Delete a question. There is no confirmation step."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Question id")),
)

var bookmarkToolDef = mcp.NewTool("qna_bookmark",
	mcp.WithDescription("Toggle a question's bookmark. The backend flips the current value."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Question id")),
)

var markToolDef = mcp.NewTool("qna_mark",
	mcp.WithDescription("Set a question's done flag."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Question id")),
	mcp.WithBoolean("done", mcp.Required(), mcp.Description("New done flag")),
)

var categoryListToolDef = mcp.NewTool("category_list",
	mcp.WithDescription("List categories."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var categoryCreateToolDef = mcp.NewTool("category_create",
	mcp.WithDescription("Create a category."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Category name")),
)

var categoryUpdateToolDef = mcp.NewTool("category_update",
	mcp.WithDescription("Rename a category."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Category id")),
	mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
)

var categoryDeleteToolDef = mcp.NewTool("category_delete",
	mcp.WithDescription("Delete a category and, on the backend, its questions."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Category id")),
)

var exportToolDef = mcp.NewTool("bulk_export",
	mcp.WithDescription("Download a full backup as qna_backup.json or qna_backup.csv into a directory."),
	mcp.WithString("format", mcp.Enum("json", "csv"), mcp.Description("Backup format (default json)")),
	mcp.WithString("dir", mcp.Description("Target directory (default: export_dir from config, else the working directory)")),
)

var importToolDef = mcp.NewTool("bulk_import",
	mcp.WithDescription("Upload a JSON or CSV backup. The file is not validated locally."),
	mcp.WithString("path", mcp.Required(), mcp.Description("File to upload")),
	mcp.WithString("format", mcp.Enum("json", "csv"), mcp.Description("File format (default json)")),
)

var scheduleToolDef = mcp.NewTool("card_schedule",
	mcp.WithDescription("Record a 1-5 self-assessment and schedule the next review (1, 3, 7, 14, 30 or 90 days)."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Question id")),
	mcp.WithNumber("rating", mcp.Required(), mcp.Description("Rating 1 (forgot) to 5 (easy)")),
)
