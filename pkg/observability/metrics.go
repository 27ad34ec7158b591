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
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records evaluation metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry

	sessionsStarted   metric.Int64Counter
	turns             metric.Int64Counter
	responderDuration metric.Float64Histogram
	responderErrors   metric.Int64Counter
	policyViolations  metric.Int64Counter
	decisions         metric.Int64Counter
	httpRequests      metric.Int64Counter
	httpDuration      metric.Float64Histogram
}

func newMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(cfg.Namespace)
	name := func(n string) string { return cfg.Namespace + "_" + n }

	m := &Metrics{provider: provider, registry: registry}

	if m.sessionsStarted, err = meter.Int64Counter(name("sessions_started_total"),
		metric.WithDescription("Total evaluation sessions started")); err != nil {
		return nil, fmt.Errorf("failed to create sessions counter: %w", err)
	}
	if m.turns, err = meter.Int64Counter(name("turns_total"),
		metric.WithDescription("Total responder turns by message type")); err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}
	if m.responderDuration, err = meter.Float64Histogram(name("responder_call_duration_seconds"),
		metric.WithDescription("Responder call duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create responder duration histogram: %w", err)
	}
	if m.responderErrors, err = meter.Int64Counter(name("responder_errors_total"),
		metric.WithDescription("Total failed responder calls")); err != nil {
		return nil, fmt.Errorf("failed to create responder errors counter: %w", err)
	}
	if m.policyViolations, err = meter.Int64Counter(name("policy_violations_total"),
		metric.WithDescription("Total policy violations found in action proposals")); err != nil {
		return nil, fmt.Errorf("failed to create policy violations counter: %w", err)
	}
	if m.decisions, err = meter.Int64Counter(name("decisions_total"),
		metric.WithDescription("Total decisions scored by criterion and validity")); err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter(name("http_requests_total"),
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram(name("http_request_duration_seconds"),
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStarted counts a new session.
func (m *Metrics) RecordSessionStarted(ctx context.Context, persona, difficulty string) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("persona", persona),
		attribute.String("difficulty", difficulty),
	))
}

// RecordTurn counts a responder reply by its declared type.
func (m *Metrics) RecordTurn(ctx context.Context, msgType string) {
	if m == nil {
		return
	}
	if msgType == "" {
		msgType = "unknown"
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}

// RecordResponderCall records the latency and outcome of a responder call.
func (m *Metrics) RecordResponderCall(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.responderDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.responderErrors.Add(ctx, 1)
	}
}

// RecordPolicyViolations counts violations found in one proposal.
func (m *Metrics) RecordPolicyViolations(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.policyViolations.Add(ctx, int64(n))
}

// RecordDecision counts a scored decision.
func (m *Metrics) RecordDecision(ctx context.Context, criterion string, valid bool) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("criterion", criterion),
		attribute.Bool("valid", valid),
	))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
