// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcpserver exposes the session engine as MCP tools, so an MCP
// client can drive evaluation sessions directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/arena/pkg/session"
)

// Tool names.
const (
	ToolStartSession    = "start_session"
	ToolContinueSession = "continue_session"
	ToolGetSession      = "get_session"
)

// Option configures the MCP server.
type Option func(*options)

type options struct {
	name    string
	version string
}

// WithName sets the server name reported to clients.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithVersion sets the server version reported to clients.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// New builds an MCP server backed by engine.
func New(engine *session.Engine, opts ...Option) *server.MCPServer {
	o := &options{name: "arena", version: "dev"}
	for _, opt := range opts {
		opt(o)
	}

	s := server.NewMCPServer(o.name, o.version, server.WithToolCapabilities(true))
	t := &tools{engine: engine}

	s.AddTool(mcp.NewTool(ToolStartSession,
		mcp.WithDescription("Start an evaluation session for the first task matching persona and difficulty. Returns the coordinator's reaction to the responder's first message."),
		mcp.WithString("persona", mcp.Description("Task persona, e.g. ServiceAgent")),
		mcp.WithString("difficulty", mcp.Description("Task difficulty, e.g. easy")),
	), t.start)

	s.AddTool(mcp.NewTool(ToolContinueSession,
		mcp.WithDescription("Advance a session by one turn."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to continue")),
	), t.continueSession)

	s.AddTool(mcp.NewTool(ToolGetSession,
		mcp.WithDescription("Return the full transcript and state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to read")),
	), t.get)

	return s
}

// ServeStdio serves the tools over stdin/stdout until the client hangs up.
func ServeStdio(engine *session.Engine, opts ...Option) error {
	return server.ServeStdio(New(engine, opts...))
}

type tools struct {
	engine *session.Engine
}

func (t *tools) start(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	persona := req.GetString("persona", "ServiceAgent")
	difficulty := req.GetString("difficulty", "easy")

	reaction, err := t.engine.Start(ctx, persona, difficulty)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(reaction)
}

func (t *tools) continueSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reaction, err := t.engine.Continue(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(reaction)
}

func (t *tools) get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := t.engine.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
