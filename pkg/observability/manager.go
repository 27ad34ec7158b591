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

// Package observability wires OpenTelemetry tracing and Prometheus metrics.
//
// Both are off by default. A nil *Manager and a nil *Metrics are valid and
// behave as disabled, so callers never need to branch on configuration.
package observability

import (
	"context"
	"errors"
	"net/http"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer and meter providers.
type Manager struct {
	cfg            Config
	tracerProvider trace.TracerProvider
	sdkTracer      *sdktrace.TracerProvider
	metrics        *Metrics
}

// NewManager initializes tracing and metrics according to cfg.
func NewManager(ctx context.Context, cfg Config, version string) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tp, sdkTP, err := newTracerProvider(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, err
	}
	metrics, err := newMetrics(cfg.Metrics)
	if err != nil {
		if sdkTP != nil {
			_ = sdkTP.Shutdown(ctx)
		}
		return nil, err
	}

	return &Manager{
		cfg:            cfg,
		tracerProvider: tp,
		sdkTracer:      sdkTP,
		metrics:        metrics,
	}, nil
}

// Tracer returns a named tracer, or a no-op tracer when disabled.
func (m *Manager) Tracer(name string) trace.Tracer {
	if m == nil || m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Metrics returns the metrics recorder; nil when metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// MetricsEnabled reports whether a metrics endpoint should be served.
func (m *Manager) MetricsEnabled() bool {
	return m != nil && m.metrics != nil
}

// MetricsPath is the configured metrics endpoint path.
func (m *Manager) MetricsPath() string {
	if m == nil || m.cfg.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.cfg.Metrics.Endpoint
}

// MetricsHandler serves the Prometheus endpoint.
func (m *Manager) MetricsHandler() http.Handler {
	return m.Metrics().Handler()
}

// Shutdown flushes and stops the providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.sdkTracer != nil {
		errs = append(errs, m.sdkTracer.Shutdown(ctx))
	}
	errs = append(errs, m.metrics.shutdown(ctx))
	return errors.Join(errs...)
}
