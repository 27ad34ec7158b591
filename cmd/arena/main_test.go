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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/arena/pkg/mockwhite"
	"github.com/kadirpekel/arena/pkg/session"
	"github.com/kadirpekel/arena/pkg/task"
)

func TestRunEpisode_Mock(t *testing.T) {
	catalog := task.NewCatalog([]task.Task{task.FallbackTask()}, task.MatchStrict)
	engine := session.NewEngine(catalog, mockwhite.New(), session.DefaultConfig())

	var out bytes.Buffer
	require.NoError(t, runEpisode(context.Background(), engine, &out, "ServiceAgent", "easy", true))

	dec := json.NewDecoder(&out)
	var first, last session.Reaction
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&last))
	assert.False(t, first.Done)
	assert.True(t, last.Done)
	require.NotNil(t, last.Scores)

	var snap session.Snapshot
	require.NoError(t, dec.Decode(&snap))
	assert.Equal(t, first.SessionID, snap.SessionID)
	assert.Equal(t, session.StateTerminalDecision, snap.State)
}

func TestRunEpisode_UnknownPersona(t *testing.T) {
	catalog := task.NewCatalog([]task.Task{task.FallbackTask()}, task.MatchStrict)
	engine := session.NewEngine(catalog, mockwhite.New(), session.DefaultConfig())

	err := runEpisode(context.Background(), engine, &bytes.Buffer{}, "Nobody", "easy", false)
	assert.ErrorIs(t, err, session.ErrTaskNotFound)
}

func TestWriteSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeSchema(&out, "decision", true))
	assert.Contains(t, out.String(), `"confidence"`)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out.String()), "\n")+1)

	out.Reset()
	require.NoError(t, writeSchema(&out, "all", false))
	var all map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &all))
	assert.Len(t, all, 4)

	out.Reset()
	require.NoError(t, writeSchema(&out, "config", false))
	assert.Contains(t, out.String(), `"allowed_domains"`)

	assert.Error(t, writeSchema(&out, "bogus", false))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCmd(t *testing.T) {
	cfgPath := writeFile(t, "arena.yaml", "policy:\n  allowed_domains: [example.org]\n")

	t.Run("valid config", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, (&ValidateCmd{Config: cfgPath}).run(context.Background(), &out))
		assert.Contains(t, out.String(), "valid")
	})

	t.Run("invalid config", func(t *testing.T) {
		bad := writeFile(t, "bad.yaml", "session:\n  max_rounds: -1\n")
		var out bytes.Buffer
		err := (&ValidateCmd{Config: bad, Format: "json"}).run(context.Background(), &out)
		require.Error(t, err)
		assert.Contains(t, out.String(), `"valid": false`)
	})

	t.Run("message violates policy", func(t *testing.T) {
		msg := writeFile(t, "msg.json", `{"type":"action_proposal","role":"white","session_id":"s","turn":1,
			"content":{"action":{"kind":"GET","request":{"url":"http://localhost/x","headers":{},"body":{}}}}}`)
		var out bytes.Buffer
		err := (&ValidateCmd{Config: cfgPath, Message: msg}).run(context.Background(), &out)
		require.Error(t, err)
		assert.Contains(t, out.String(), "localhost")
	})

	t.Run("print config", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, (&ValidateCmd{Config: cfgPath, PrintConfig: true}).run(context.Background(), &out))
		assert.Contains(t, out.String(), "example.org")
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, loader, err := loadConfig(context.Background(), &CLI{ConfigType: "file"})
	require.NoError(t, err)
	assert.Nil(t, loader)
	assert.Equal(t, 9101, cfg.Server.Port)

	_, _, err = loadConfig(context.Background(), &CLI{ConfigType: "nope"})
	assert.Error(t, err)
}

func TestFirstSet(t *testing.T) {
	assert.Equal(t, "b", firstSet("", "b", "c"))
	assert.Equal(t, "", firstSet("", ""))
}

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "arena.log")
	cleanup, err := initLogger("debug", path, "", nil)
	require.NoError(t, err)
	cleanup()
	assert.FileExists(t, path)

	_, err = initLogger("loud", "", "", nil)
	assert.Error(t, err)
}
