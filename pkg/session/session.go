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

// Package session drives evaluation sessions between the coordinator and
// a responder.
//
// A session moves through these states:
//
//	awaiting_task -> awaiting_response -> terminal_decision
//	                        |  ^
//	                        v  |  (proposal feedback, unknown replies)
//	                 awaiting_response
//	                        |
//	                        v
//	                 terminal_limit     (turn budget exhausted)
//
// Every Observation and Feedback the coordinator emits and every raw reply
// the responder returns is appended to the session history, and the whole
// history is sent to the responder on each turn.
package session

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/task"
)

// State is the lifecycle phase of a session.
type State string

const (
	StateAwaitingTask     State = "awaiting_task"
	StateAwaitingResponse State = "awaiting_response"
	StateTerminalDecision State = "terminal_decision"
	StateTerminalLimit    State = "terminal_limit"
)

// IsTerminal reports whether no further turns are accepted.
func (s State) IsTerminal() bool {
	return s == StateTerminalDecision || s == StateTerminalLimit
}

// Session is one evaluation conversation. Turns on the same session are
// serialized; reads through Snapshot never block on an in-flight turn.
type Session struct {
	id         string
	persona    string
	difficulty string
	task       task.Task
	createdAt  time.Time

	// turnLock admits one driver at a time.
	turnLock chan struct{}

	mu        sync.RWMutex
	turn      int
	state     State
	history   []protocol.HistoryItem
	lastWhite json.RawMessage
	updatedAt time.Time
}

func newSession(id, persona, difficulty string, t task.Task) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		persona:    persona,
		difficulty: difficulty,
		task:       t,
		createdAt:  now,
		turnLock:   make(chan struct{}, 1),
		turn:       1,
		state:      StateAwaitingTask,
		updatedAt:  now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Task returns the task bound to the session.
func (s *Session) Task() task.Task { return s.task.Clone() }

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.turnLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() { <-s.turnLock }

func (s *Session) current() (int, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn, s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.updatedAt = time.Now()
}

// appendOutgoing records a coordinator message and marks the session as
// waiting on the responder.
func (s *Session) appendOutgoing(item protocol.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, item)
	s.state = StateAwaitingResponse
	s.updatedAt = time.Now()
}

// appendFeedback records a coordinator verdict without changing state.
func (s *Session) appendFeedback(item protocol.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, item)
	s.updatedAt = time.Now()
}

// appendReply records a raw responder reply and advances the turn.
// It returns the new turn number.
func (s *Session) appendReply(raw []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := protocol.AgentItem(raw)
	s.history = append(s.history, item)
	s.lastWhite = item.Content
	s.turn++
	s.updatedAt = time.Now()
	return s.turn
}

func (s *Session) envelope() *protocol.HistoryEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &protocol.HistoryEnvelope{History: slices.Clone(s.history)}
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	SessionID  string                 `json:"session_id"`
	Persona    string                 `json:"persona"`
	Difficulty string                 `json:"difficulty"`
	Task       task.Task              `json:"task"`
	Turn       int                    `json:"turn"`
	State      State                  `json:"state"`
	History    []protocol.HistoryItem `json:"history"`
	LastWhite  json.RawMessage        `json:"last_white,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]protocol.HistoryItem, len(s.history))
	copy(history, s.history)
	return Snapshot{
		SessionID:  s.id,
		Persona:    s.persona,
		Difficulty: s.difficulty,
		Task:       s.task.Clone(),
		Turn:       s.turn,
		State:      s.state,
		History:    history,
		LastWhite:  s.lastWhite,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}
