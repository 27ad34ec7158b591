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

package protocol

import (
	"encoding/json"
	"fmt"
)

// HistoryRole is the conversational role of a history entry.
type HistoryRole string

const (
	// HistoryUser marks messages authored by the coordinator.
	HistoryUser HistoryRole = "user"
	// HistoryAgent marks messages authored by the responder.
	HistoryAgent HistoryRole = "agent"
)

// HistoryItem is one entry in the conversation sent to the responder.
type HistoryItem struct {
	Role    HistoryRole     `json:"role"`
	Content json.RawMessage `json:"content"`
}

// HistoryEnvelope is the request body posted to the responder on every turn.
type HistoryEnvelope struct {
	History []HistoryItem `json:"history"`
}

// UserItem encodes a coordinator message as a history entry.
func UserItem(m Message) (HistoryItem, error) {
	data, err := Marshal(m)
	if err != nil {
		return HistoryItem{}, fmt.Errorf("failed to encode %s message: %w", m.Envelope().Type, err)
	}
	return HistoryItem{Role: HistoryUser, Content: data}, nil
}

// AgentItem wraps a raw responder reply as a history entry. The bytes are
// kept verbatim, including replies that failed validation.
func AgentItem(raw []byte) HistoryItem {
	return HistoryItem{Role: HistoryAgent, Content: append(json.RawMessage(nil), raw...)}
}

// Last returns the most recent entry, if any.
func (e *HistoryEnvelope) Last() (HistoryItem, bool) {
	if e == nil || len(e.History) == 0 {
		return HistoryItem{}, false
	}
	return e.History[len(e.History)-1], true
}

// Count returns how many entries carry the given role.
func (e *HistoryEnvelope) Count(role HistoryRole) int {
	if e == nil {
		return 0
	}
	n := 0
	for _, item := range e.History {
		if item.Role == role {
			n++
		}
	}
	return n
}
