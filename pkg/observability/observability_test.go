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

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, ExporterOTLP, cfg.Tracing.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.True(t, cfg.Tracing.IsInsecure())
	assert.Equal(t, 10*time.Second, cfg.Tracing.Timeout)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Endpoint)
	assert.Equal(t, "arena", cfg.Metrics.Namespace)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "bad exporter", cfg: Config{Tracing: TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}}, wantErr: true},
		{name: "bad rate", cfg: Config{Tracing: TracingConfig{Enabled: true, Exporter: ExporterStdout, SamplingRate: 2}}, wantErr: true},
		{name: "stdout ok", cfg: Config{Tracing: TracingConfig{Enabled: true, Exporter: ExporterStdout, SamplingRate: 0.5}}},
		{name: "metrics without endpoint", cfg: Config{Metrics: MetricsConfig{Enabled: true}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNilManagerIsDisabled(t *testing.T) {
	var m *Manager
	assert.NotNil(t, m.Tracer("x"))
	assert.Nil(t, m.Metrics())
	assert.False(t, m.MetricsEnabled())
	assert.NoError(t, m.Shutdown(context.Background()))

	// nil metrics must be safe to record on
	var metrics *Metrics
	metrics.RecordSessionStarted(context.Background(), "p", "d")
	metrics.RecordResponderCall(context.Background(), time.Second, errors.New("boom"))
	metrics.RecordHTTPRequest(context.Background(), "GET", "/health", 200, time.Millisecond)
}

func TestManager_MetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, Config{Metrics: MetricsConfig{Enabled: true}}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	require.True(t, m.MetricsEnabled())
	assert.Equal(t, "/metrics", m.MetricsPath())

	m.Metrics().RecordSessionStarted(ctx, "ServiceAgent", "easy")
	m.Metrics().RecordTurn(ctx, "decision")
	m.Metrics().RecordDecision(ctx, "exact_match_ids", true)

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "arena_sessions_started_total")
	assert.Contains(t, string(body), "arena_decisions_total")
}
