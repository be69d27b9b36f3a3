// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Algerknown tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/algerknown/algerknown/internal/kbservice"
)

// Server wraps the MCP server with Algerknown tools.
type Server struct {
	mcp *server.MCPServer
	svc *kbservice.Service
}

// New creates a new MCP server with all Algerknown tools registered.
func New(svc *kbservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Algerknown",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_knowledge",
		mcp.WithDescription("Query the knowledge base and get a synthesized answer with citations."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
	), s.queryKnowledge)

	s.mcp.AddTool(mcp.NewTool("search_entries",
		mcp.WithDescription("Semantic search over entries and summaries without synthesis."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("type", mcp.Description("Optional type filter: entry or summary")),
	), s.searchEntries)

	s.mcp.AddTool(mcp.NewTool("read_entry",
		mcp.WithDescription("Read one record by id, including its raw YAML tree."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id (e.g. zk-note-001)")),
	), s.readEntry)

	s.mcp.AddTool(mcp.NewTool("recent_changes",
		mcp.WithDescription("Read recent node-level changes from the changelog. "+
			"Filters by source file, node path prefix, or change type (added/modified/removed)."),
		mcp.WithString("source", mcp.Description("Optional source file filter")),
		mcp.WithString("path", mcp.Description("Optional node path prefix filter")),
		mcp.WithString("change_type", mcp.Description("Optional change type: added, modified, or removed")),
	), s.recentChanges)

	s.mcp.AddTool(mcp.NewTool("entry_history",
		mcp.WithDescription("Get the change history of one record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.entryHistory)

	s.mcp.AddTool(mcp.NewTool("get_entry_contract",
		mcp.WithDescription("Returns the canonical Algerknown entry format contract. "+
			"Call this before writing entry files to ensure correct structure."),
	), s.getEntryContract)

	// Resource: entry format contract.
	s.mcp.AddResource(
		mcp.NewResource("algerknown://entry-format", "Entry Format Contract",
			mcp.WithResourceDescription("Canonical YAML record format that all entries and summaries must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
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

func (s *Server) queryKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.svc.Query(ctx, query, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(answer, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typeFilter := ""
	if t, err := req.RequireString("type"); err == nil {
		typeFilter = t
	}
	results, err := s.svc.Search(ctx, query, 10, typeFilter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Entry(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) recentChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := ""
	if v, err := req.RequireString("source"); err == nil {
		source = v
	}
	pathPrefix := ""
	if v, err := req.RequireString("path"); err == nil {
		pathPrefix = v
	}
	changeType := ""
	if v, err := req.RequireString("change_type"); err == nil {
		changeType = v
	}
	page, err := s.svc.Changelog(0, source, pathPrefix, changeType)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(page, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) entryHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.EntryHistory(id, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(page, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getEntryContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormatContract), nil
}

func (s *Server) readEntryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "algerknown://entry-format",
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
