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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a structural problem with a message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// decodeError converts a json decoding failure into a ValidationError.
func decodeError(prefix string, err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		// Header is embedded, so its fields surface with the Go type name.
		field := strings.TrimPrefix(typeErr.Field, "Header.")
		if prefix != "" && field != "" {
			field = prefix + "." + field
		} else if field == "" {
			field = prefix
		}
		return invalid(field, "expected %s, got %s", typeErr.Type, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return invalid(prefix, "malformed JSON at offset %d", syntaxErr.Offset)
	}
	return invalid(prefix, "%v", err)
}

type rawMessage struct {
	Header
	Content json.RawMessage `json:"content"`
}

// DeclaredType returns the type tag of a raw message without validating
// anything else. It returns "" when data is not a JSON object.
func DeclaredType(data []byte) MsgType {
	var peek struct {
		Type MsgType `json:"type"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return ""
	}
	return peek.Type
}

// Parse decodes and validates a single message.
//
// Messages with an unknown type tag are returned as *Unrecognized. Known
// types are checked for role pairing, turn range and content shape; any
// failure is reported as a *ValidationError.
func Parse(data []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("", err)
	}

	if !raw.Type.Known() {
		return &Unrecognized{Header: raw.Header, Raw: append(json.RawMessage(nil), data...)}, nil
	}
	if raw.Protocol == "" {
		raw.Protocol = Version
	}
	if err := raw.Header.validate(raw.Type); err != nil {
		return nil, err
	}
	if len(raw.Content) == 0 || bytes.Equal(bytes.TrimSpace(raw.Content), []byte("null")) {
		return nil, invalid("content", "required")
	}

	var msg interface {
		Message
		Validate() error
	}
	var content any
	switch raw.Type {
	case TypeObservation:
		m := &Observation{Header: raw.Header}
		msg, content = m, &m.Content
	case TypeActionProposal:
		m := &ActionProposal{Header: raw.Header}
		msg, content = m, &m.Content
	case TypeDecision:
		m := &Decision{Header: raw.Header}
		msg, content = m, &m.Content
	case TypeFeedback:
		m := &Feedback{Header: raw.Header}
		msg, content = m, &m.Content
	}

	if err := json.Unmarshal(raw.Content, content); err != nil {
		return nil, decodeError("content", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Marshal encodes a message to its wire form.
func Marshal(m Message) ([]byte, error) {
	if u, ok := m.(*Unrecognized); ok {
		return u.MarshalJSON()
	}
	return json.Marshal(m)
}

func (h Header) validate(expected MsgType) error {
	if h.Type != expected {
		return invalid("type", "expected %q, got %q", expected, h.Type)
	}
	role, _ := expected.Role()
	if h.Role != role {
		return invalid("role", "%s messages must have role %q, got %q", expected, role, h.Role)
	}
	if h.SessionID == "" {
		return invalid("session_id", "required")
	}
	if h.Turn < 1 {
		return invalid("turn", "must be >= 1, got %d", h.Turn)
	}
	if h.Protocol != "" && h.Protocol != Version {
		return invalid("protocol", "unsupported version %q", h.Protocol)
	}
	return nil
}

// Validate checks the Observation header and content.
func (m *Observation) Validate() error {
	return m.Header.validate(TypeObservation)
}

// Validate checks the proposal header, action and optional execution record.
func (m *ActionProposal) Validate() error {
	if err := m.Header.validate(TypeActionProposal); err != nil {
		return err
	}
	action := m.Content.Action
	if !action.Kind.Valid() {
		return invalid("content.action.kind", "must be GET or POST, got %q", action.Kind)
	}
	if action.Request.URL == "" {
		return invalid("content.action.request.url", "required")
	}
	if exec := m.Content.WhiteAgentExecution; exec != nil {
		if exec.Request.URL == "" {
			return invalid("content.white_agent_execution.request.url", "required")
		}
		if exec.Result.Status < 0 || exec.Result.Status > 999 {
			return invalid("content.white_agent_execution.result.status", "must be within [0, 999], got %d", exec.Result.Status)
		}
	}
	return nil
}

// Validate checks the decision header and confidence range. It also
// normalizes a missing answers list to an empty one.
func (m *Decision) Validate() error {
	if err := m.Header.validate(TypeDecision); err != nil {
		return err
	}
	if m.Content.Answers == nil {
		m.Content.Answers = []string{}
	}
	if c := m.Content.Confidence; c < 0 || c > 1 {
		return invalid("content.confidence", "must be within [0, 1], got %g", c)
	}
	return nil
}

// Validate checks the Feedback header.
func (m *Feedback) Validate() error {
	if err := m.Header.validate(TypeFeedback); err != nil {
		return err
	}
	if m.Content.Validation.PolicyViolations == nil {
		m.Content.Validation.PolicyViolations = []string{}
	}
	return nil
}
