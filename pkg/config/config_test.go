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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/recordstore"
	"github.com/kadirpekel/arena/pkg/task"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "http://localhost:9101", cfg.Server.PublicURL)
	assert.Equal(t, "0.0.0.0:9101", cfg.Server.Address())
	assert.Equal(t, DefaultResponderURL, cfg.Responder.URL)
	assert.Equal(t, 60*time.Second, cfg.Responder.Timeout)
	assert.Equal(t, []string{"example.org", "localhost"}, cfg.Policy.AllowedDomains)
	assert.Equal(t, []string{"GET", "POST"}, cfg.Policy.AllowMethods)
	assert.Equal(t, 15, cfg.Session.MaxRounds)
	assert.Equal(t, task.MatchStrict, cfg.MatchMode())
	assert.Equal(t, recordstore.DriverSQLite, cfg.RecordStore.Driver)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("ARENA_TEST_WHITE_HOST", "white.internal")

	path := writeConfig(t, `
server:
  port: 8080
  rate_limit:
    enabled: true
    requests_per_second: 2.5
responder:
  url: http://${ARENA_TEST_WHITE_HOST}:9100/a2a/step
  timeout: 5s
policy:
  allowed_domains: example.org, api.example.org
  allow_methods: [get]
session:
  max_rounds: "4"
  matching: lenient
  decision_retry: true
tasks:
  file: ${ARENA_TEST_TASKS:-data/tasks.yaml}
`)

	cfg, loader, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	defer loader.Close()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.InDelta(t, 2.5, cfg.Server.RateLimit.RequestsPerSecond, 1e-9)
	assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
	assert.Equal(t, "http://white.internal:9100/a2a/step", cfg.Responder.URL)
	assert.Equal(t, 5*time.Second, cfg.Responder.Timeout)
	assert.Equal(t, []string{"example.org", "api.example.org"}, cfg.Policy.AllowedDomains)
	assert.Equal(t, 4, cfg.Session.MaxRounds)
	assert.Equal(t, task.MatchLenient, cfg.MatchMode())
	assert.Equal(t, "data/tasks.yaml", cfg.Tasks.File)

	sc := cfg.SessionConfig()
	assert.Equal(t, 4, sc.MaxRounds)
	assert.True(t, sc.DecisionRetry)
	assert.Equal(t, []protocol.HTTPMethod{protocol.MethodGet}, sc.Policy.AllowMethods)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvWhiteURL, "http://white:1/a2a/step")
	t.Setenv(EnvAllowedDomains, "a.example, b.example ,")
	t.Setenv(EnvMaxRounds, "3")

	cfg, err := Parse([]byte("responder:\n  url: http://ignored/a2a/step\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://white:1/a2a/step", cfg.Responder.URL)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Policy.AllowedDomains)
	assert.Equal(t, 3, cfg.Session.MaxRounds)

	t.Setenv(EnvMaxRounds, "many")
	_, err = FromEnv()
	assert.ErrorContains(t, err, EnvMaxRounds)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", "sever:\n  port: 1\n", "sever"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad method", "policy:\n  allow_methods: [DELETE]\n", "unsupported method"},
		{"bad matching", "session:\n  matching: fuzzy\n", "session.matching"},
		{"bad level", "logger:\n  level: loud\n", "invalid log level"},
		{"bad driver", "record_store:\n  driver: oracle\n", "record_store"},
		{"bad exporter", "observability:\n  tracing:\n    enabled: true\n    exporter: zipkin\n", "observability"},
		{"not yaml", "server: [unclosed\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoader_Watch(t *testing.T) {
	path := writeConfig(t, "session:\n  max_rounds: 5\n")

	reloaded := make(chan *Config, 4)
	cfg, loader, err := LoadFile(context.Background(), path, WithOnChange(func(c *Config) {
		reloaded <- c
	}))
	require.NoError(t, err)
	defer loader.Close()
	assert.Equal(t, 5, cfg.Session.MaxRounds)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loader.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("session:\n  max_rounds: 7\n"), 0o644))

	select {
	case c := <-reloaded:
		assert.Equal(t, 7, c.Session.MaxRounds)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	<-done
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, LoadEnvFiles())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ARENA_TEST_FROM_DOTENV=yes\n"), 0o644))
	t.Setenv("ARENA_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("ARENA_TEST_FROM_DOTENV"))
	require.NoError(t, LoadEnvFiles())
	assert.Equal(t, "yes", os.Getenv("ARENA_TEST_FROM_DOTENV"))
}

func TestLoadFile_SampleConfig(t *testing.T) {
	t.Setenv("A2A_WHITE_URL", "")
	cfg, loader, err := LoadFile(context.Background(), filepath.Join("..", "..", "configs", "arena.yaml"))
	require.NoError(t, err)
	defer loader.Close()

	assert.Equal(t, DefaultResponderURL, cfg.Responder.URL)
	assert.Equal(t, 60*time.Second, cfg.Responder.Timeout)
	assert.Equal(t, task.MatchStrict, cfg.MatchMode())
	assert.Equal(t, "data/records.json", cfg.RecordStore.SeedFile)
	assert.True(t, cfg.Observability.Metrics.Enabled)
}
