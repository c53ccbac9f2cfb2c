// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/noteservice"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes in the vault with their titles and last update times."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as markup text. Audio anchors appear as bracketed stand-ins."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id (e.g. meetings/standup)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note from markup text. "+
			"Content MUST follow the Ansuz markup contract; read it first via "+
			"the get_markup_contract tool or the ansuz://markup-format resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id for the new note (vault-relative, no extension)")),
		mcp.WithString("markup", mcp.Required(), mcp.Description("Markup content following the Ansuz markup contract")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("note_timeline",
		mcp.WithDescription("List a note's audio references in capture order: which block was written at which moment of which recording."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.noteTimeline)

	s.mcp.AddTool(mcp.NewTool("list_recordings",
		mcp.WithDescription("List the recordings captured against a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.listRecordings)

	s.mcp.AddTool(mcp.NewTool("get_markup_contract",
		mcp.WithDescription("Returns the Ansuz markup contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getMarkupContract)

	// Resource: markup format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://markup-format", "Markup Contract",
			mcp.WithResourceDescription("Markup dialect that note exports use and imports accept."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMarkupContractResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.ListNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(metas, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.svc.ExportMarkup(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(string(text)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	markup, err := req.RequireString("markup")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.CreateNote(ctx, id, []byte(markup)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", id)), nil
}

func (s *Server) noteTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.svc.Timeline(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no audio references"), nil
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRecordings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := s.svc.Recordings(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("no recordings"), nil
	}
	type recordingOut struct {
		ID         string `json:"id"`
		DurationMs *int64 `json:"duration_ms,omitempty"`
		CreatedAt  string `json:"created_at"`
	}
	out := make([]recordingOut, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordingOut{
			ID:         rec.ID,
			DurationMs: rec.DurationMs,
			CreatedAt:  rec.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getMarkupContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MarkupContract), nil
}

func (s *Server) readMarkupContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://markup-format",
			MIMEType: "text/markdown",
			Text:     MarkupContract,
		},
	}, nil
}
