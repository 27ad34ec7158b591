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

// Package relay carries the conversation to the responder (white agent)
// and brings its reply back.
//
// Each turn is a single POST of the full history envelope. The reply body
// is returned verbatim; interpreting it is the session engine's job.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/arena/pkg/observability"
	"github.com/kadirpekel/arena/pkg/protocol"
)

// DefaultTimeout bounds a single responder call.
const DefaultTimeout = 60 * time.Second

// maxReplyBytes caps how much of a reply is read.
const maxReplyBytes = 10 << 20

// ErrResponderUnavailable is returned when the responder cannot be
// reached, times out, answers with a non-2xx status or returns a body
// that is not JSON.
var ErrResponderUnavailable = errors.New("responder unavailable")

// Responder is the white agent as seen by the coordinator.
type Responder interface {
	Step(ctx context.Context, env *protocol.HistoryEnvelope) ([]byte, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, env *protocol.HistoryEnvelope) ([]byte, error)

// Step implements Responder.
func (f ResponderFunc) Step(ctx context.Context, env *protocol.HistoryEnvelope) ([]byte, error) {
	return f(ctx, env)
}

// HTTPResponder posts history envelopes to a remote step endpoint.
type HTTPResponder struct {
	endpoint   string
	httpClient *http.Client
	tracer     trace.Tracer
	metrics    *observability.Metrics
}

// Option configures an HTTPResponder.
type Option func(*HTTPResponder)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPResponder) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *HTTPResponder) {
		if d > 0 {
			r.httpClient.Timeout = d
		}
	}
}

// WithObservability attaches tracing and metrics.
func WithObservability(m *observability.Manager) Option {
	return func(r *HTTPResponder) {
		r.tracer = m.Tracer("arena/relay")
		r.metrics = m.Metrics()
	}
}

// NewHTTPResponder creates a responder client for endpoint.
func NewHTTPResponder(endpoint string, opts ...Option) *HTTPResponder {
	r := &HTTPResponder{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tracer:     noop.NewTracerProvider().Tracer("arena/relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint returns the step URL.
func (r *HTTPResponder) Endpoint() string { return r.endpoint }

// Step sends the envelope and returns the raw reply body.
func (r *HTTPResponder) Step(ctx context.Context, env *protocol.HistoryEnvelope) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, observability.SpanResponderStep,
		trace.WithAttributes(attribute.Int("arena.history_length", len(env.History))))
	defer span.End()

	start := time.Now()
	reply, err := r.step(ctx, env)
	r.metrics.RecordResponderCall(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "Responder call failed", "endpoint", r.endpoint, "error", err)
		return nil, err
	}
	return reply, nil
}

func (r *HTTPResponder) step(ctx context.Context, env *protocol.HistoryEnvelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrResponderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read reply: %v", ErrResponderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrResponderUnavailable, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: reply is not valid JSON", ErrResponderUnavailable)
	}
	return body, nil
}

// Card fetches the responder's capability card from /a2a/card on the same
// host. Responders are not required to serve one.
func (r *HTTPResponder) Card(ctx context.Context) (map[string]any, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid responder endpoint: %w", err)
	}
	u.Path, u.RawQuery = "/a2a/card", ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card request returned status %d", resp.StatusCode)
	}
	var card map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode card: %w", err)
	}
	return card, nil
}
