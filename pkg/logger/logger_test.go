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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		if tt.wantErr {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestNew_Simple(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, FormatSimple)

	l.Debug("hidden")
	l.With("session_id", "s1").WithGroup("turn").Info("Session started", "n", 2)
	l.Warn("careful")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO Session started session_id=s1 turn.n=2\n")
	assert.Contains(t, out, "WARN careful\n")
	assert.NotContains(t, out, "\033[")
}

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelDebug, &buf, FormatVerbose).Debug("details", "k", "v")
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} DEBUG details k=v\n$`, buf.String())
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, FormatJSON).Info("hello", "turn", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, float64(3), rec["turn"])
}

func TestFilteringHandler_DropsThirdParty(t *testing.T) {
	var buf bytes.Buffer
	h := &filteringHandler{
		handler:  &lineHandler{level: slog.LevelDebug, mu: &sync.Mutex{}, writer: &buf},
		minLevel: slog.LevelInfo,
	}

	// A record whose PC points outside this module.
	rec := slog.NewRecord(timeZero, slog.LevelInfo, "from elsewhere", funcPC(bytes.NewBufferString))
	require.NoError(t, h.Handle(context.Background(), rec))
	assert.Empty(t, buf.String())

	h.minLevel = slog.LevelDebug
	require.NoError(t, h.Handle(context.Background(), rec))
	assert.Contains(t, buf.String(), "from elsewhere")
}

func TestIsArenaPackage(t *testing.T) {
	var pcs [1]uintptr
	runtime.Callers(1, pcs[:])
	assert.True(t, isArenaPackage(pcs[0]))
	assert.True(t, isArenaPackage(0))
	assert.False(t, isArenaPackage(funcPC(bytes.NewBufferString)))
}

func TestNew_KeepsModuleRecordsAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelWarn, &buf, FormatSimple)

	l.Info("dropped by level")
	l.Warn("kept")
	l.Error("also kept", "turn", 1)

	out := buf.String()
	assert.NotContains(t, out, "dropped by level")
	assert.Contains(t, out, "WARN kept\n")
	assert.Contains(t, out, "ERROR also kept turn=1\n")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}

func TestOpenLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	w, err := OpenLogFile(path, Rotation{MaxSizeMB: 1})
	require.NoError(t, err)

	l := New(slog.LevelInfo, w, FormatSimple)
	l.Info("written to file")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO written to file")

	_, err = OpenLogFile("", Rotation{})
	assert.Error(t, err)
}

func TestInit_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := Init(slog.LevelInfo, &buf, FormatSimple)
	assert.Same(t, l, GetLogger())

	slog.Info("via default")
	assert.Contains(t, buf.String(), "INFO via default")
}

var timeZero = time.Time{}

// funcPC returns a return-address style PC inside f, the form slog stores
// in Record.PC.
func funcPC(f any) uintptr {
	return reflect.ValueOf(f).Pointer() + 1
}
