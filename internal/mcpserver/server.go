// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tasklet items and sync status for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/docstore"
	"github.com/starford/tasklet/internal/document"
	"github.com/starford/tasklet/internal/syncengine"
)

// Resource URIs.
const (
	DocumentURI = "tasklet://document"
	FormatURI   = "tasklet://format"
)

// Syncer is the sync engine surface the server reports on.
type Syncer interface {
	Status() syncengine.Status
	Handle() (capability.Handle, bool)
	LastError() error
}

// Server wraps the MCP server with tasklet tools.
type Server struct {
	mcp   *server.MCPServer
	store *docstore.Store
	sync  Syncer
}

// New creates a new MCP server with all tasklet tools registered.
func New(store *docstore.Store, sync Syncer, version string) *Server {
	s := &Server{store: store, sync: sync}

	s.mcp = server.NewMCPServer(
		"Tasklet",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List todo items, optionally filtered by section and a text query."),
		mcp.WithString("section", mcp.Description("One of inProgress, done, longterm, trash (empty for all but trash)")),
		mcp.WithString("query", mcp.Description("Case-insensitive substring to match against item text")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("add_item",
		mcp.WithDescription("Add a todo item to the in-progress list, or to longterm."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Item text")),
		mcp.WithBoolean("longterm", mcp.Description("Add as a recurring longterm item")),
	), s.addItem)

	s.mcp.AddTool(mcp.NewTool("toggle_item",
		mcp.WithDescription("Toggle completion of an item. Longterm items flip their done-today mark."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
	), s.toggleItem)

	s.mcp.AddTool(mcp.NewTool("trash_item",
		mcp.WithDescription("Move an item to the trash."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
	), s.trashItem)

	s.mcp.AddTool(mcp.NewTool("restore_item",
		mcp.WithDescription("Restore an item from the trash to the list it came from."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
	), s.restoreItem)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether changes are being saved to the bound data file."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("export_document",
		mcp.WithDescription("Return the whole document as pretty-printed JSON. "+
			"See the tasklet://format resource for the layout."),
	), s.exportDocument)

	s.mcp.AddResource(
		mcp.NewResource(DocumentURI, "Current Document",
			mcp.WithResourceDescription("The full tasklet document as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readDocumentResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Document Format",
			mcp.WithResourceDescription("Layout of the tasklet data file."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// durability is appended to mutating tool results so the caller knows
// whether the change reached disk.
func (s *Server) durability() string {
	if s.store.Durable() {
		return "saved"
	}
	return fmt.Sprintf("not saved: sync is %s", s.sync.Status())
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := s.store.Snapshot()

	var items []document.Item
	if name := req.GetString("section", ""); name != "" {
		section := document.Section(name)
		if !section.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown section: %s", name)), nil
		}
		items = doc.BySection(section)
	} else {
		for _, section := range document.MainSections {
			items = append(items, doc.BySection(section)...)
		}
	}
	items = document.Search(items, req.GetString("query", ""))
	if len(items) == 0 {
		return mcp.NewToolResultText("no items"), nil
	}

	var b strings.Builder
	for _, it := range items {
		mark := " "
		if it.Section == document.Done || it.DoneToday {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %s (%s) %s\n", mark, it.ID, it.Section, it.Text)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) addItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.store.AddItem(text, req.GetBool("longterm", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s (%s)", item.ID, s.durability())), nil
}

func (s *Server) toggleItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.itemTool(req, "toggled", s.store.ToggleItem)
}

func (s *Server) trashItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.itemTool(req, "trashed", s.store.TrashItem)
}

func (s *Server) restoreItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.itemTool(req, "restored", s.store.RestoreItem)
}

func (s *Server) itemTool(req mcp.CallToolRequest, verb string, op func(string) (document.Item, error)) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := op(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s -> %s (%s)", verb, item.ID, item.Section, s.durability())), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := map[string]any{
		"status":  s.sync.Status().String(),
		"durable": s.store.Durable(),
	}
	if h, ok := s.sync.Handle(); ok {
		out["target"] = h.Name()
	}
	if err := s.sync.LastError(); err != nil {
		out["error"] = err.Error()
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) exportDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := s.store.ExportSnapshot()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) readDocumentResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	text, err := s.store.ExportSnapshot()
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DocumentURI,
			MIMEType: "application/json",
			Text:     text,
		},
	}, nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
