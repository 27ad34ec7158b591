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

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/arena/pkg/mockwhite"
	"github.com/kadirpekel/arena/pkg/session"
	"github.com/kadirpekel/arena/pkg/task"
)

func newClient(t *testing.T) *client.Client {
	t.Helper()
	catalog := task.NewCatalog([]task.Task{task.FallbackTask()}, task.MatchStrict)
	engine := session.NewEngine(catalog, mockwhite.New(), session.DefaultConfig())

	c, err := client.NewInProcessClient(New(engine, WithVersion("test")))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { c.Close() })

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "test-client", Version: "1.0.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func call(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := c.CallTool(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	return result
}

func text(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, r.Content, 1)
	tc, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListTools(t *testing.T) {
	c := newClient(t)
	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolStartSession, ToolContinueSession, ToolGetSession}, names)
}

func TestSessionTools(t *testing.T) {
	c := newClient(t)

	res := call(t, c, ToolStartSession, map[string]any{"persona": "ServiceAgent", "difficulty": "easy"})
	require.False(t, res.IsError, text(t, res))
	var started session.Reaction
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &started))
	require.NotEmpty(t, started.SessionID)
	assert.False(t, started.Done)

	res = call(t, c, ToolContinueSession, map[string]any{"session_id": started.SessionID})
	require.False(t, res.IsError, text(t, res))
	var final session.Reaction
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &final))
	assert.True(t, final.Done)
	require.NotNil(t, final.Scores)

	res = call(t, c, ToolGetSession, map[string]any{"session_id": started.SessionID})
	require.False(t, res.IsError, text(t, res))
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &snap))
	assert.Equal(t, session.StateTerminalDecision, snap.State)
	assert.Len(t, snap.History, 5)
}

func TestToolErrors(t *testing.T) {
	c := newClient(t)

	res := call(t, c, ToolStartSession, map[string]any{"persona": "Nobody"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "task not found")

	res = call(t, c, ToolContinueSession, map[string]any{})
	assert.True(t, res.IsError)

	res = call(t, c, ToolGetSession, map[string]any{"session_id": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "session not found")
}
