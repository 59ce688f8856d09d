// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes volume tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/fileservice"
)

// Server wraps the MCP server with volume tools.
type Server struct {
	mcp *server.MCPServer
	svc *fileservice.Service
}

// New creates a new MCP server with all volume tools registered.
func New(svc *fileservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"flashfs",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the full content of a file on the volume as text."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute volume path (e.g. /config/app.json)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("safe_save",
		mcp.WithDescription("Replace a file's content through a staging file so a failed "+
			"write never leaves a partially written target. Creates the file if missing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute volume path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New file content")),
		mcp.WithString("if_match", mcp.Description("Optional SHA-256 of the current content; the save is refused if it differs")),
	), s.safeSave)

	s.mcp.AddTool(mcp.NewTool("list_tree",
		mcp.WithDescription("List files and directories below a directory, depth-first."),
		mcp.WithString("path", mcp.Description("Directory to list (default /)")),
		mcp.WithNumber("depth", mcp.Description("Maximum depth (default 5)")),
	), s.listTree)

	s.mcp.AddTool(mcp.NewTool("copy_file",
		mcp.WithDescription("Copy a file, overwriting the destination."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Destination path")),
	), s.copyFile)

	s.mcp.AddTool(mcp.NewTool("move_file",
		mcp.WithDescription("Move or rename a file, replacing the destination."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Destination path")),
	), s.moveFile)

	s.mcp.AddTool(mcp.NewTool("truncate_file",
		mcp.WithDescription("Shorten a file to at most size bytes. Never pads."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute volume path")),
		mcp.WithNumber("size", mcp.Required(), mcp.Description("New size in bytes")),
	), s.truncateFile)

	s.mcp.AddTool(mcp.NewTool("space_info",
		mcp.WithDescription("Report total, used and free bytes on the volume."),
	), s.spaceInfo)

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

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.Read(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(f.Content)), nil
}

func (s *Server) safeSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.Save(ctx, path, []byte(content), req.GetString("if_match", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) listTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root := req.GetString("path", "/")
	depth := req.GetInt("depth", fileops.DefaultDepth)
	entries, err := s.svc.Tree(ctx, root, depth)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("empty"), nil
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		if e.IsDir {
			lines[i] = e.Path + "/"
		} else {
			lines[i] = fmt.Sprintf("%s %d", e.Path, e.Size)
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func paths(req mcp.CallToolRequest) (string, string, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return "", "", err
	}
	to, err := req.RequireString("to")
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

func (s *Server) copyFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, to, err := paths(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.Copy(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) moveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, to, err := paths(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.Move(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) truncateFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	size, err := req.RequireInt("size")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.Truncate(ctx, path, int64(size))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) spaceInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Space(ctx)), nil
}
