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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/arena/pkg/evaluation"
	"github.com/kadirpekel/arena/pkg/observability"
	"github.com/kadirpekel/arena/pkg/policy"
	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/relay"
	"github.com/kadirpekel/arena/pkg/task"
)

var (
	// ErrSessionTerminal is returned when continuing a finished session.
	ErrSessionTerminal = errors.New("session already finished")

	// ErrInvalidDecision is returned when the responder's decision fails
	// structural validation.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrTaskNotFound is returned when no task matches a start request.
	ErrTaskNotFound = task.ErrTaskNotFound

	// ErrResponderUnavailable is returned when the responder call fails.
	ErrResponderUnavailable = relay.ErrResponderUnavailable
)

// Notes carried by reactions that have no feedback or scores.
const (
	NoteMaxRounds      = "max rounds reached"
	NoteUnknownMessage = "Unknown message type"
)

// Defaults for Config.
const (
	DefaultMaxRounds       = 15
	DefaultStartContext    = "CRM Arena Pro Evaluation"
	DefaultFollowUpContext = "Follow-up turn"
)

// DefaultEndpoints are the data endpoints advertised to the responder.
func DefaultEndpoints() []string {
	return []string{"/salesforce/soql", "/salesforce/sosl"}
}

// Config controls session behaviour.
type Config struct {
	// MaxRounds is the turn budget. Continue is refused once the session
	// turn exceeds it.
	MaxRounds int

	// Policy guards action proposals.
	Policy policy.ProposalPolicy

	// DecisionRetry turns a malformed decision into error feedback instead
	// of a terminal client error.
	DecisionRetry bool

	// StartContext and FollowUpContext fill the observation context field.
	StartContext    string
	FollowUpContext string

	// Endpoints are advertised in the first observation's schema hint.
	Endpoints []string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxRounds:       DefaultMaxRounds,
		Policy:          policy.Default(),
		StartContext:    DefaultStartContext,
		FollowUpContext: DefaultFollowUpContext,
		Endpoints:       DefaultEndpoints(),
	}
}

func (c *Config) setDefaults() {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.StartContext == "" {
		c.StartContext = DefaultStartContext
	}
	if c.FollowUpContext == "" {
		c.FollowUpContext = DefaultFollowUpContext
	}
	if c.Endpoints == nil {
		c.Endpoints = DefaultEndpoints()
	}
	if c.Policy.AllowedDomains == nil && c.Policy.AllowMethods == nil && c.Policy.MaxBodyBytes == 0 {
		c.Policy = policy.Default()
	}
}

// Reaction is the coordinator's response to one responder reply.
type Reaction struct {
	SessionID    string                       `json:"session_id"`
	Turn         int                          `json:"turn"`
	State        State                        `json:"state"`
	Done         bool                         `json:"done"`
	Feedback     *protocol.Feedback           `json:"feedback,omitempty"`
	Validation   *protocol.FeedbackValidation `json:"validation,omitempty"`
	Scores       *evaluation.Scores           `json:"scores,omitempty"`
	Note         string                       `json:"note,omitempty"`
	WhiteMessage json.RawMessage              `json:"white_msg,omitempty"`
}

// Engine runs sessions.
type Engine struct {
	settings  atomic.Pointer[settings]
	responder relay.Responder
	store     Store
	evaluator *evaluation.Evaluator
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.Metrics
	newID     func() string
}

// settings is the reloadable part of an Engine. Sessions keep the task
// they started with; a reload affects new sessions and later turns.
type settings struct {
	catalog *task.Catalog
	cfg     Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore replaces the in-memory session store.
func WithStore(s Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithEvaluator replaces the default evaluator.
func WithEvaluator(ev *evaluation.Evaluator) Option {
	return func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObservability attaches tracing and metrics.
func WithObservability(m *observability.Manager) Option {
	return func(e *Engine) {
		e.tracer = m.Tracer("arena/session")
		e.metrics = m.Metrics()
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}

// NewEngine creates an engine over a task catalog and a responder.
func NewEngine(catalog *task.Catalog, responder relay.Responder, cfg Config, opts ...Option) *Engine {
	cfg.setDefaults()
	e := &Engine{
		responder: responder,
		store:     NewInMemoryStore(),
		evaluator: evaluation.NewEvaluator(),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("arena/session"),
		newID:     uuid.NewString,
	}
	e.settings.Store(&settings{catalog: catalog, cfg: cfg})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the task catalog.
func (e *Engine) Catalog() *task.Catalog { return e.settings.Load().catalog }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.settings.Load().cfg }

// Reload swaps the catalog and configuration. A nil catalog keeps the
// current one. In-flight turns finish with the settings they started with.
func (e *Engine) Reload(catalog *task.Catalog, cfg Config) {
	cfg.setDefaults()
	if catalog == nil {
		catalog = e.Catalog()
	}
	e.settings.Store(&settings{catalog: catalog, cfg: cfg})
	e.logger.Info("Session engine reloaded", "tasks", catalog.Len(), "max_rounds", cfg.MaxRounds)
}

// Start opens a session for the first task matching persona and
// difficulty, sends the opening observation and reacts to the reply.
//
// The session is stored before the responder is called, so on
// ErrResponderUnavailable it still exists with the observation recorded.
func (e *Engine) Start(ctx context.Context, persona, difficulty string) (*Reaction, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanSessionStart, trace.WithAttributes(
		attribute.String(observability.AttrPersona, persona),
		attribute.String(observability.AttrDifficulty, difficulty),
	))
	defer span.End()

	st := e.settings.Load()
	t, err := st.catalog.Pick(persona, difficulty)
	if err != nil {
		return nil, failSpan(span, err)
	}

	s := newSession(e.newID(), persona, difficulty, t)
	if err := s.lock(ctx); err != nil {
		return nil, failSpan(span, err)
	}
	defer s.unlock()

	if err := e.store.Put(ctx, s); err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to store session: %w", err))
	}
	span.SetAttributes(
		attribute.String(observability.AttrSessionID, s.id),
		attribute.String(observability.AttrTaskID, t.ID),
	)
	e.metrics.RecordSessionStarted(ctx, persona, difficulty)
	e.logger.Info("Session started", "session_id", s.id, "task_id", t.ID, "persona", persona, "difficulty", difficulty)

	obs := protocol.NewObservation(s.id, 1, protocol.ObservationContent{
		Context: st.cfg.StartContext,
		Case:    protocol.Case{ID: t.ID, Instruction: t.Instruction},
		Schema:  &protocol.SchemaHint{Endpoints: append([]string(nil), st.cfg.Endpoints...)},
		Constraints: &protocol.Constraints{
			MaxRound: st.cfg.MaxRounds,
			Metric:   string(t.SuccessCriteria),
		},
	})

	r, err := e.exchange(ctx, st.cfg, s, obs)
	return r, failSpan(span, err)
}

// Continue sends a follow-up observation on an existing session and
// reacts to the reply. Once the turn budget is exhausted the session
// moves to terminal_limit and the responder is not called.
func (e *Engine) Continue(ctx context.Context, sessionID string) (*Reaction, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanSessionContinue, trace.WithAttributes(
		attribute.String(observability.AttrSessionID, sessionID),
	))
	defer span.End()

	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, failSpan(span, err)
	}
	if err := s.lock(ctx); err != nil {
		return nil, failSpan(span, err)
	}
	defer s.unlock()

	cfg := e.Config()
	turn, state := s.current()
	span.SetAttributes(attribute.Int(observability.AttrTurn, turn))

	switch {
	case state == StateTerminalLimit:
		return e.limitReaction(s), nil
	case state == StateTerminalDecision:
		return nil, failSpan(span, fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID))
	case turn > cfg.MaxRounds:
		s.setState(StateTerminalLimit)
		e.logger.Info("Session reached turn limit", "session_id", s.id, "turn", turn, "max_rounds", cfg.MaxRounds)
		return e.limitReaction(s), nil
	}

	t := s.task
	obs := protocol.NewObservation(s.id, turn, protocol.ObservationContent{
		Context: cfg.FollowUpContext,
		Case:    protocol.Case{ID: t.ID, Instruction: t.Instruction},
	})

	r, err := e.exchange(ctx, cfg, s, obs)
	return r, failSpan(span, err)
}

// Get returns a snapshot of a session.
func (e *Engine) Get(ctx context.Context, sessionID string) (Snapshot, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// List returns snapshots of all sessions.
func (e *Engine) List(ctx context.Context) ([]Snapshot, error) {
	sessions, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out, nil
}

func (e *Engine) limitReaction(s *Session) *Reaction {
	turn, state := s.current()
	return &Reaction{SessionID: s.id, Turn: turn, State: state, Done: true, Note: NoteMaxRounds}
}

// exchange records obs, calls the responder with the full history and
// classifies the reply. The caller holds the session's turn lock.
func (e *Engine) exchange(ctx context.Context, cfg Config, s *Session, obs *protocol.Observation) (*Reaction, error) {
	item, err := protocol.UserItem(obs)
	if err != nil {
		return nil, err
	}
	s.appendOutgoing(item)

	raw, err := e.responder.Step(ctx, s.envelope())
	if err == nil && !json.Valid(raw) {
		err = fmt.Errorf("%w: reply is not valid JSON", ErrResponderUnavailable)
	}
	if err != nil {
		e.logger.Warn("Responder unavailable", "session_id", s.id, "turn", obs.Turn, "error", err)
		if !errors.Is(err, ErrResponderUnavailable) {
			err = fmt.Errorf("%w: %v", ErrResponderUnavailable, err)
		}
		return nil, err
	}

	turn := s.appendReply(raw)
	declared := protocol.DeclaredType(raw)
	e.metrics.RecordTurn(ctx, string(declared))

	msg, perr := protocol.Parse(raw)
	if perr != nil {
		return e.reactToInvalid(ctx, cfg, s, turn, declared, raw, perr)
	}

	switch m := msg.(type) {
	case *protocol.ActionProposal:
		return e.reactToProposal(ctx, cfg, s, turn, m)
	case *protocol.Decision:
		return e.reactToDecision(ctx, s, turn, m), nil
	default:
		return e.reactToUnknown(s, turn, declared, raw, nil), nil
	}
}

func (e *Engine) reactToProposal(ctx context.Context, cfg Config, s *Session, turn int, p *protocol.ActionProposal) (*Reaction, error) {
	v := policy.ValidateActionProposal(p, cfg.Policy)
	e.metrics.RecordPolicyViolations(ctx, len(v.PolicyViolations))

	var fb *protocol.Feedback
	if v.ActionValid {
		echo := p.Content
		fb = protocol.NewFeedbackOK(s.id, turn, v.Notes, &echo)
	} else {
		e.logger.Info("Proposal rejected", "session_id", s.id, "turn", turn, "violations", v.PolicyViolations)
		fb = protocol.NewFeedbackError(s.id, turn, v.Notes, v.PolicyViolations)
	}
	return e.sendFeedback(s, turn, fb)
}

func (e *Engine) reactToDecision(ctx context.Context, s *Session, turn int, d *protocol.Decision) *Reaction {
	v := policy.ValidateDecision(d)
	scores := e.evaluator.Evaluate(ctx, s.task, d.Content)
	s.setState(StateTerminalDecision)
	e.metrics.RecordDecision(ctx, string(s.task.SuccessCriteria), v.ActionValid)
	e.logger.Info("Session decided", "session_id", s.id, "turn", turn, "valid", v.ActionValid)

	return &Reaction{
		SessionID:  s.id,
		Turn:       turn,
		State:      StateTerminalDecision,
		Done:       true,
		Validation: &v,
		Scores:     &scores,
	}
}

func (e *Engine) reactToInvalid(ctx context.Context, cfg Config, s *Session, turn int, declared protocol.MsgType, raw []byte, perr error) (*Reaction, error) {
	switch declared {
	case protocol.TypeActionProposal:
		e.logger.Info("Invalid proposal", "session_id", s.id, "turn", turn, "error", perr)
		fb := protocol.NewFeedbackError(s.id, turn, "Invalid proposal: "+perr.Error(), []string{perr.Error()})
		return e.sendFeedback(s, turn, fb)

	case protocol.TypeDecision:
		if cfg.DecisionRetry {
			e.logger.Info("Invalid decision, asking for a retry", "session_id", s.id, "turn", turn, "error", perr)
			fb := protocol.NewFeedbackError(s.id, turn, "Invalid decision: "+perr.Error(), []string{perr.Error()})
			return e.sendFeedback(s, turn, fb)
		}
		s.setState(StateTerminalDecision)
		e.metrics.RecordDecision(ctx, string(s.task.SuccessCriteria), false)
		e.logger.Info("Invalid decision", "session_id", s.id, "turn", turn, "error", perr)
		return nil, fmt.Errorf("%w: %w", ErrInvalidDecision, perr)

	default:
		return e.reactToUnknown(s, turn, declared, raw, perr), nil
	}
}

func (e *Engine) reactToUnknown(s *Session, turn int, declared protocol.MsgType, raw []byte, perr error) *Reaction {
	e.logger.Info("Unrecognized responder message", "session_id", s.id, "turn", turn, "type", declared, "error", perr)
	_, state := s.current()
	return &Reaction{
		SessionID:    s.id,
		Turn:         turn,
		State:        state,
		Note:         NoteUnknownMessage,
		WhiteMessage: append(json.RawMessage(nil), raw...),
	}
}

func (e *Engine) sendFeedback(s *Session, turn int, fb *protocol.Feedback) (*Reaction, error) {
	item, err := protocol.UserItem(fb)
	if err != nil {
		return nil, err
	}
	s.appendFeedback(item)
	_, state := s.current()
	return &Reaction{SessionID: s.id, Turn: turn, State: state, Feedback: fb}, nil
}

func failSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
