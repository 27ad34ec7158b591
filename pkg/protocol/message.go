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

// Package protocol defines the A2A evaluation message model.
//
// Every message on the wire is a JSON object with a common header
// (type, role, session_id, turn, protocol) and a type-specific content
// object. Four message types exist and each one is bound to a fixed role:
//
//	observation      green  task statement or follow-up prompt
//	action_proposal  white  a proposed (possibly already executed) HTTP call
//	decision         white  the final answer
//	feedback         green  validation verdict for a proposal
//
// Parse turns raw bytes into one of the typed variants. Messages whose
// type tag is not one of the four come back as *Unrecognized so callers
// can switch exhaustively without touching untyped maps.
package protocol

import "encoding/json"

// Version is the protocol tag carried by every message.
const Version = "A2A-0.1"

// Role identifies which party authored a message.
type Role string

const (
	RoleGreen Role = "green"
	RoleWhite Role = "white"
)

// MsgType is the message type tag.
type MsgType string

const (
	TypeObservation    MsgType = "observation"
	TypeActionProposal MsgType = "action_proposal"
	TypeDecision       MsgType = "decision"
	TypeFeedback       MsgType = "feedback"
)

// Role returns the role a message of this type must carry.
func (t MsgType) Role() (Role, bool) {
	switch t {
	case TypeObservation, TypeFeedback:
		return RoleGreen, true
	case TypeActionProposal, TypeDecision:
		return RoleWhite, true
	default:
		return "", false
	}
}

// Known reports whether t is one of the four protocol message types.
func (t MsgType) Known() bool {
	_, ok := t.Role()
	return ok
}

// HTTPMethod is the verb of a proposed HTTP action.
type HTTPMethod string

const (
	MethodGet  HTTPMethod = "GET"
	MethodPost HTTPMethod = "POST"
)

// Valid reports whether m is a supported method.
func (m HTTPMethod) Valid() bool {
	return m == MethodGet || m == MethodPost
}

// Header is the envelope shared by all messages.
type Header struct {
	Type      MsgType `json:"type" jsonschema:"required"`
	Role      Role    `json:"role" jsonschema:"required,enum=green,enum=white"`
	SessionID string  `json:"session_id" jsonschema:"required"`
	Turn      int     `json:"turn" jsonschema:"required,minimum=1"`
	Protocol  string  `json:"protocol,omitempty"`
}

// Envelope returns the message header.
func (h Header) Envelope() Header { return h }

// Message is implemented by every typed message variant.
type Message interface {
	Envelope() Header
	isMessage()
}

// Case is the task statement embedded in an Observation.
type Case struct {
	ID          string `json:"id" jsonschema:"required"`
	Instruction string `json:"instruction" jsonschema:"required"`
}

// SchemaHint lists the data endpoints the responder may call.
type SchemaHint struct {
	Endpoints []string `json:"endpoints,omitempty"`
}

// Constraints carries evaluation limits announced to the responder.
type Constraints struct {
	MaxRound int    `json:"max_round,omitempty"`
	Metric   string `json:"metric,omitempty"`
}

// ObservationContent is the payload of an Observation.
type ObservationContent struct {
	Context     string       `json:"context"`
	Case        Case         `json:"case" jsonschema:"required"`
	Schema      *SchemaHint  `json:"schema,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// HTTPRequest describes a request target.
type HTTPRequest struct {
	URL     string         `json:"url" jsonschema:"required"`
	Headers map[string]any `json:"headers"`
	Body    map[string]any `json:"body"`
}

// HTTPAction is a proposed call.
type HTTPAction struct {
	Kind    HTTPMethod  `json:"kind" jsonschema:"required"`
	Request HTTPRequest `json:"request" jsonschema:"required"`
}

// ExecutedResult is what the responder observed after running a call.
type ExecutedResult struct {
	Status  int            `json:"status" jsonschema:"minimum=0,maximum=999"`
	Headers map[string]any `json:"headers"`
	Body    map[string]any `json:"body"`
}

// WhiteExecution is the record of a call the responder already made.
type WhiteExecution struct {
	Request HTTPRequest    `json:"request" jsonschema:"required"`
	Result  ExecutedResult `json:"result" jsonschema:"required"`
}

// ActionContent is the payload of an ActionProposal.
type ActionContent struct {
	Action              HTTPAction      `json:"action" jsonschema:"required"`
	Justification       string          `json:"justification,omitempty"`
	Expectation         string          `json:"expectation,omitempty"`
	WhiteAgentExecution *WhiteExecution `json:"white_agent_execution,omitempty"`
}

// DecisionContent is the payload of a Decision.
//
// IDs, Text and Series distinguish absent (nil) from empty, so they are
// always written and null on the wire means the field was not supplied.
type DecisionContent struct {
	Answers    []string  `json:"answers"`
	Plan       string    `json:"plan,omitempty"`
	Confidence float64   `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	IDs        []string  `json:"ids"`
	Text       *string   `json:"text"`
	Series     []float64 `json:"series"`
}

// FeedbackValidation is the verdict attached to a Feedback message.
type FeedbackValidation struct {
	ActionValid      bool     `json:"action_valid"`
	PolicyViolations []string `json:"policy_violations"`
	Notes            string   `json:"notes,omitempty"`
}

// FeedbackContent is the payload of a Feedback.
type FeedbackContent struct {
	Ack         bool               `json:"ack"`
	Validation  FeedbackValidation `json:"validation" jsonschema:"required"`
	Observation *ActionContent     `json:"observation,omitempty"`
}

// Observation is sent by the coordinator to pose or continue a task.
type Observation struct {
	Header
	Content ObservationContent `json:"content" jsonschema:"required"`
}

// ActionProposal is sent by the responder to propose an HTTP call.
type ActionProposal struct {
	Header
	Content ActionContent `json:"content" jsonschema:"required"`
}

// Decision is the responder's final answer.
type Decision struct {
	Header
	Content DecisionContent `json:"content" jsonschema:"required"`
}

// Feedback is the coordinator's verdict on a proposal.
type Feedback struct {
	Header
	Content FeedbackContent `json:"content" jsonschema:"required"`
}

// Unrecognized holds a message whose type tag is not part of the protocol.
type Unrecognized struct {
	Header
	Raw json.RawMessage `json:"-"`
}

func (*Observation) isMessage()    {}
func (*ActionProposal) isMessage() {}
func (*Decision) isMessage()       {}
func (*Feedback) isMessage()       {}
func (*Unrecognized) isMessage()   {}

// MarshalJSON returns the original bytes.
func (u *Unrecognized) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

func newHeader(t MsgType, sessionID string, turn int) Header {
	role, _ := t.Role()
	return Header{Type: t, Role: role, SessionID: sessionID, Turn: turn, Protocol: Version}
}

// NewObservation builds an Observation for the given session turn.
func NewObservation(sessionID string, turn int, content ObservationContent) *Observation {
	return &Observation{Header: newHeader(TypeObservation, sessionID, turn), Content: content}
}

// NewActionProposal builds an ActionProposal.
func NewActionProposal(sessionID string, turn int, content ActionContent) *ActionProposal {
	return &ActionProposal{Header: newHeader(TypeActionProposal, sessionID, turn), Content: content}
}

// NewDecision builds a Decision.
func NewDecision(sessionID string, turn int, content DecisionContent) *Decision {
	if content.Answers == nil {
		content.Answers = []string{}
	}
	return &Decision{Header: newHeader(TypeDecision, sessionID, turn), Content: content}
}

// NewFeedbackOK acknowledges a valid proposal and echoes its content back.
func NewFeedbackOK(sessionID string, turn int, notes string, echo *ActionContent) *Feedback {
	return &Feedback{
		Header: newHeader(TypeFeedback, sessionID, turn),
		Content: FeedbackContent{
			Ack: true,
			Validation: FeedbackValidation{
				ActionValid:      true,
				PolicyViolations: []string{},
				Notes:            notes,
			},
			Observation: echo,
		},
	}
}

// NewFeedbackError reports an invalid proposal.
func NewFeedbackError(sessionID string, turn int, notes string, violations []string) *Feedback {
	if violations == nil {
		violations = []string{}
	}
	return &Feedback{
		Header: newHeader(TypeFeedback, sessionID, turn),
		Content: FeedbackContent{
			Ack: true,
			Validation: FeedbackValidation{
				ActionValid:      false,
				PolicyViolations: violations,
				Notes:            notes,
			},
		},
	}
}
