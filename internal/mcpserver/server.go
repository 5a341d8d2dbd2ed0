// Package mcpserver exposes page notes to LLM clients as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/notestore"
	"github.com/starford/pagenotes/internal/query"
	"github.com/starford/pagenotes/internal/urlnorm"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Server wraps the MCP server with pagenotes tools.
type Server struct {
	mcp        *server.MCPServer
	store      *notestore.Store
	engine     *query.Engine
	previewLen int
}

// Option configures a Server.
type Option func(*Server)

// WithPreviewLength sets how many characters of content list tools return.
func WithPreviewLength(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.previewLen = n
		}
	}
}

// listItem is one row of a list tool result.
type listItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Preview   string `json:"preview"`
	Updated   int64  `json:"updated"`
	SourceURL string `json:"sourceUrl,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// New creates a new MCP server with all tools registered.
func New(store *notestore.Store, engine *query.Engine, opts ...Option) *Server {
	s := &Server{store: store, engine: engine, previewLen: models.DefaultPreviewLength}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"pagenotes",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_page_notes",
		mcp.WithDescription("List the notes attached to one web page, in the order they were written."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL; it is normalized before lookup")),
	), s.listPageNotes)

	s.mcp.AddTool(mcp.NewTool("list_domain_notes",
		mcp.WithDescription("List every note on a site, newest first, with the page each belongs to."),
		mcp.WithString("domain", mcp.Description("Host name, e.g. docs.example.com")),
		mcp.WithString("url", mcp.Description("Any URL on the site; used when domain is empty")),
	), s.listDomainNotes)

	s.mcp.AddTool(mcp.NewTool("list_all_notes",
		mcp.WithDescription("List every stored note across all sites, newest first."),
	), s.listAllNotes)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Create or update a note on a page. "+
			"Omit id to create a new note. Read the record format first via "+
			"get_record_format or the "+RecordFormatURI+" resource."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text; must not be blank")),
		mcp.WithString("id", mcp.Description("Existing note id to update")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete one note from a page."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("export_notes",
		mcp.WithDescription("Export a page's notes as a JSON document with a timestamp."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
	), s.exportNotes)

	s.mcp.AddTool(mcp.NewTool("normalize_url",
		mcp.WithDescription("Show the canonical key a page URL is stored under."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
	), s.normalizeURL)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns how notes are stored and how URLs map to pages."),
	), s.getRecordFormat)

	s.mcp.AddResource(
		mcp.NewResource(RecordFormatURI, "Record Format",
			mcp.WithResourceDescription("Stored note collection format and URL normalization rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func optionalString(req mcp.CallToolRequest, name string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return ""
}

func (s *Server) items(notes []models.AnnotatedNote) []listItem {
	out := make([]listItem, len(notes))
	for i, n := range notes {
		out[i] = listItem{
			ID:        n.ID,
			Title:     n.Title,
			Preview:   models.Preview(n.Content, s.previewLen),
			Updated:   n.Updated,
			SourceURL: n.SourceURL,
			Domain:    n.Domain,
		}
	}
	return out
}

func (s *Server) listPageNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes := s.store.Load(ctx, u)
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes for " + s.store.Normalize(u)), nil
	}
	return jsonResult(notes), nil
}

func (s *Server) listDomainNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain := strings.TrimSpace(optionalString(req, "domain"))
	if domain == "" {
		u := optionalString(req, "url")
		if u == "" {
			return mcp.NewToolResultError("domain or url is required"), nil
		}
		domain = urlnorm.Domain(u)
	}
	notes := s.engine.DomainView(ctx, domain)
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes on " + domain), nil
	}
	return jsonResult(s.items(notes)), nil
}

func (s *Server) listAllNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := s.engine.GlobalView(ctx)
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes stored"), nil
	}
	return jsonResult(s.items(notes)), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content must not be blank"), nil
	}

	id := optionalString(req, "id")
	if id == "" {
		id = models.NewID()
	}
	note, err := s.store.Save(ctx, u, id, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := s.store.Delete(ctx, u, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !removed {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) exportNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.store.Export(ctx, u)), nil
}

func (s *Server) normalizeURL(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.store.Normalize(u)), nil
}

func (s *Server) getRecordFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormat), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RecordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}
