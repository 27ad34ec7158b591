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

// Package mockwhite is a hardcoded responder for local runs and tests.
//
// On its first turn it proposes a knowledge base lookup; every later turn
// it answers with a fixed, deliberately wrong decision.
package mockwhite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/recordstore"
)

// StepPath is where the responder accepts history envelopes.
const StepPath = "/a2a/step"

// SearchTerms are cycled through by turn when building a proposal.
var SearchTerms = []string{"billing", "refund", "policy", "escalation", "acme"}

// Searcher runs a SOSL search. *recordstore.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, sosl string) (recordstore.SearchResult, error)
}

// Agent is the mock responder.
type Agent struct {
	greenURL   string
	searcher   Searcher
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the agent.
type Option func(*Agent)

// WithGreenURL makes the agent execute its lookups against the
// coordinator's /salesforce/sosl endpoint.
func WithGreenURL(u string) Option {
	return func(a *Agent) {
		a.greenURL = strings.TrimRight(u, "/")
	}
}

// WithSearcher executes lookups in-process. It takes precedence over
// WithGreenURL.
func WithSearcher(s Searcher) Option {
	return func(a *Agent) {
		a.searcher = s
	}
}

// WithHTTPClient sets the client used to reach the coordinator.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) {
		a.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a mock responder.
func New(opts ...Option) *Agent {
	a := &Agent{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Step implements relay.Responder.
func (a *Agent) Step(ctx context.Context, env *protocol.HistoryEnvelope) ([]byte, error) {
	msg, err := a.Reply(ctx, env)
	if err != nil {
		return nil, err
	}
	return protocol.Marshal(msg)
}

// Reply builds the next message for the conversation so far.
func (a *Agent) Reply(ctx context.Context, env *protocol.HistoryEnvelope) (protocol.Message, error) {
	sessionID, turn := "unknown", 1
	if last, ok := env.Last(); ok {
		var h protocol.Header
		if err := json.Unmarshal(last.Content, &h); err == nil {
			if h.SessionID != "" {
				sessionID = h.SessionID
			}
			if h.Turn > 0 {
				turn = h.Turn
			}
		}
	}

	if env.Count(protocol.HistoryAgent) < 1 {
		return a.proposal(ctx, sessionID, turn), nil
	}
	return Decision(sessionID, turn), nil
}

// Term returns the search term used on the given turn.
func Term(turn int) string {
	if turn < 1 {
		turn = 1
	}
	return SearchTerms[(turn-1)%len(SearchTerms)]
}

func (a *Agent) proposal(ctx context.Context, sessionID string, turn int) *protocol.ActionProposal {
	term := Term(turn)
	req := protocol.HTTPRequest{
		URL:     "http://localhost/mock/kb?q=" + url.QueryEscape(term),
		Headers: map[string]any{},
	}

	records, err := a.search(ctx, term)
	if err != nil {
		a.logger.Warn("Mock lookup failed", "term", term, "error", err)
	}
	if records == nil {
		records = []recordstore.Record{}
	}

	return protocol.NewActionProposal(sessionID, turn, protocol.ActionContent{
		Action:        protocol.HTTPAction{Kind: protocol.MethodGet, Request: req},
		Justification: "I need to look up info about " + term,
		Expectation:   "Hoping to find relevant KB articles.",
		WhiteAgentExecution: &protocol.WhiteExecution{
			Request: req,
			Result: protocol.ExecutedResult{
				Status:  http.StatusOK,
				Headers: map[string]any{},
				Body:    map[string]any{"searchRecords": records},
			},
		},
	})
}

func (a *Agent) search(ctx context.Context, term string) ([]recordstore.Record, error) {
	sosl := "FIND {" + term + "}"
	if a.searcher != nil {
		res, err := a.searcher.Search(ctx, sosl)
		if err != nil {
			return nil, err
		}
		return res.SearchRecords, nil
	}
	if a.greenURL == "" {
		return nil, nil
	}

	endpoint := a.greenURL + "/salesforce/sosl?q=" + url.QueryEscape(sosl)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sosl search returned status %d", resp.StatusCode)
	}

	var res recordstore.SearchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode search result: %w", err)
	}
	return res.SearchRecords, nil
}

// Decision is the fixed answer the mock gives once it has acted.
func Decision(sessionID string, turn int) *protocol.Decision {
	text := "dummy answer"
	return protocol.NewDecision(sessionID, turn, protocol.DecisionContent{
		Answers:    []string{"I am just a mock agent."},
		Plan:       "I tried my best but I am hardcoded.",
		Confidence: 0.1,
		IDs:        []string{"000-DUMMY"},
		Text:       &text,
		Series:     []float64{10, 20, 30},
	})
}

// Handler serves the responder endpoints.
func (a *Agent) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Post(StepPath, a.handleStep)
	r.Get("/a2a/card", a.handleCard)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (a *Agent) handleStep(w http.ResponseWriter, r *http.Request) {
	var env protocol.HistoryEnvelope
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid history envelope: " + err.Error()})
		return
	}

	msg, err := a.Reply(r.Context(), &env)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	h := msg.Envelope()
	a.logger.Debug("Mock step", "session_id", h.SessionID, "turn", h.Turn, "type", h.Type)
	writeJSON(w, http.StatusOK, msg)
}

func (a *Agent) handleCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         "arena-mock-white",
		"protocol":     protocol.Version,
		"capabilities": []string{string(protocol.TypeActionProposal), string(protocol.TypeDecision)},
	})
}

// Serve listens on addr until ctx is cancelled.
func (a *Agent) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Mock responder listening", "address", addr, "green_url", a.greenURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mock responder shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
