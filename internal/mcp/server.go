package mcp

import (
	"log"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/qnadeck/internal/config"
	"github.com/hpungsan/qnadeck/internal/shell"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"qna_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"qna_create": {
		def:     createToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreate },
	},
	"qna_update": {
		def:     updateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdate },
	},
	"qna_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"qna_bookmark": {
		def:     bookmarkToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBookmark },
	},
	"qna_mark": {
		def:     markToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMark },
	},
	"category_list": {
		def:     categoryListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryList },
	},
	"category_create": {
		def:     categoryCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryCreate },
	},
	"category_update": {
		def:     categoryUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryUpdate },
	},
	"category_delete": {
		def:     categoryDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryDelete },
	},
	"bulk_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"bulk_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"card_schedule": {
		def:     scheduleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSchedule },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the qnadeck tools registered,
// minus those listed in cfg.DisabledTools.
func NewServer(gw shell.Gateway, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"qnadeck",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(gw, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	for _, name := range ValidateDisabledTools(cfg.DisabledTools) {
		log.Printf("warning: unknown tool in disabled_tools: %s", name)
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(gw shell.Gateway, cfg *config.Config, version string) error {
	s := NewServer(gw, cfg, version)
	return server.ServeStdio(s)
}
