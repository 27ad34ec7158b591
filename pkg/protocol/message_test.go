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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Decision(t *testing.T) {
	data := []byte(`{"type":"decision","role":"white","session_id":"s1","turn":2,
		"content":{"answers":["Q-1"],"confidence":0.5,"ids":["Q-1"]}}`)

	msg, err := Parse(data)
	require.NoError(t, err)

	d, ok := msg.(*Decision)
	require.True(t, ok, "expected *Decision, got %T", msg)
	assert.Equal(t, "s1", d.SessionID)
	assert.Equal(t, 2, d.Turn)
	assert.Equal(t, Version, d.Protocol)
	assert.Equal(t, []string{"Q-1"}, d.Content.Answers)
	assert.Equal(t, []string{"Q-1"}, d.Content.IDs)
	assert.Nil(t, d.Content.Text)
	assert.Nil(t, d.Content.Series)
}

func TestParse_ActionProposal(t *testing.T) {
	data := []byte(`{"type":"action_proposal","role":"white","session_id":"s1","turn":1,
		"content":{"action":{"kind":"GET","request":{"url":"http://localhost/mock/kb?q=billing","headers":{}}},
		"white_agent_execution":{"request":{"url":"http://localhost/mock/kb?q=billing"},"result":{"status":200,"body":{"searchRecords":[]}}}}}`)

	msg, err := Parse(data)
	require.NoError(t, err)

	p, ok := msg.(*ActionProposal)
	require.True(t, ok)
	assert.Equal(t, MethodGet, p.Content.Action.Kind)
	require.NotNil(t, p.Content.WhiteAgentExecution)
	assert.Equal(t, 200, p.Content.WhiteAgentExecution.Result.Status)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{
			name:  "role mismatch",
			data:  `{"type":"decision","role":"green","session_id":"s","turn":1,"content":{}}`,
			field: "role",
		},
		{
			name:  "turn below one",
			data:  `{"type":"decision","role":"white","session_id":"s","turn":0,"content":{}}`,
			field: "turn",
		},
		{
			name:  "missing session",
			data:  `{"type":"decision","role":"white","turn":1,"content":{}}`,
			field: "session_id",
		},
		{
			name:  "missing content",
			data:  `{"type":"decision","role":"white","session_id":"s","turn":1}`,
			field: "content",
		},
		{
			name:  "confidence out of range",
			data:  `{"type":"decision","role":"white","session_id":"s","turn":1,"content":{"confidence":1.5}}`,
			field: "content.confidence",
		},
		{
			name:  "non numeric series",
			data:  `{"type":"decision","role":"white","session_id":"s","turn":1,"content":{"series":["a"]}}`,
			field: "content.series",
		},
		{
			name:  "bad method",
			data:  `{"type":"action_proposal","role":"white","session_id":"s","turn":1,"content":{"action":{"kind":"DELETE","request":{"url":"http://x"}}}}`,
			field: "content.action.kind",
		},
		{
			name:  "missing url",
			data:  `{"type":"action_proposal","role":"white","session_id":"s","turn":1,"content":{"action":{"kind":"GET","request":{}}}}`,
			field: "content.action.request.url",
		},
		{
			name:  "status out of range",
			data:  `{"type":"action_proposal","role":"white","session_id":"s","turn":1,"content":{"action":{"kind":"GET","request":{"url":"http://x"}},"white_agent_execution":{"request":{"url":"http://x"},"result":{"status":1000}}}}`,
			field: "content.white_agent_execution.result.status",
		},
		{
			name:  "wrong protocol",
			data:  `{"type":"decision","role":"white","session_id":"s","turn":1,"protocol":"A2A-9","content":{}}`,
			field: "protocol",
		},
		{
			name:  "turn wrong type",
			data:  `{"type":"decision","role":"white","session_id":"s","turn":"one","content":{}}`,
			field: "turn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Nil(t, msg)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, strings.HasPrefix(verr.Field, tt.field), "field %q should start with %q", verr.Field, tt.field)
		})
	}
}

func TestParse_HeaderTypeErrorNamesWireField(t *testing.T) {
	_, err := Parse([]byte(`{"type":"decision","role":"white","session_id":"s","turn":"one","content":{}}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "turn", verr.Field)
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"type":`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParse_Unrecognized(t *testing.T) {
	data := []byte(`{"type":"ping","role":"white","session_id":"s","turn":1}`)

	msg, err := Parse(data)
	require.NoError(t, err)

	u, ok := msg.(*Unrecognized)
	require.True(t, ok)
	assert.Equal(t, MsgType("ping"), u.Type)

	out, err := Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestDecision_RoundTrip(t *testing.T) {
	text := ""
	tests := []struct {
		name    string
		content DecisionContent
	}{
		{
			name:    "absent optional fields",
			content: DecisionContent{Answers: []string{"a"}, Confidence: 0.2},
		},
		{
			name:    "empty but present fields",
			content: DecisionContent{Answers: []string{}, IDs: []string{}, Text: &text, Series: []float64{}},
		},
		{
			name: "all fields",
			content: DecisionContent{
				Answers:    []string{"[1, 2]"},
				Plan:       "look it up",
				Confidence: 1,
				IDs:        []string{"A", "B"},
				Text:       &text,
				Series:     []float64{1.5, 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := NewDecision("sess", 3, tt.content)
			data, err := Marshal(original)
			require.NoError(t, err)

			msg, err := Parse(data)
			require.NoError(t, err)
			if diff := cmp.Diff(original, msg); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeedbackConstructors(t *testing.T) {
	echo := &ActionContent{Action: HTTPAction{Kind: MethodGet, Request: HTTPRequest{URL: "http://localhost/x"}}}

	ok := NewFeedbackOK("s", 2, "ok", echo)
	assert.Equal(t, TypeFeedback, ok.Type)
	assert.Equal(t, RoleGreen, ok.Role)
	assert.True(t, ok.Content.Validation.ActionValid)
	assert.Empty(t, ok.Content.Validation.PolicyViolations)
	assert.Same(t, echo, ok.Content.Observation)

	bad := NewFeedbackError("s", 2, "Invalid proposal", []string{"method DELETE not allowed"})
	assert.False(t, bad.Content.Validation.ActionValid)
	assert.Equal(t, []string{"method DELETE not allowed"}, bad.Content.Validation.PolicyViolations)

	data, err := Marshal(bad)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "feedback", wire["type"])
	assert.Equal(t, "green", wire["role"])
	assert.Equal(t, Version, wire["protocol"])
}

func TestHistoryItems(t *testing.T) {
	obs := NewObservation("s", 1, ObservationContent{Context: "ctx", Case: Case{ID: "t1", Instruction: "do"}})
	user, err := UserItem(obs)
	require.NoError(t, err)
	assert.Equal(t, HistoryUser, user.Role)

	env := &HistoryEnvelope{History: []HistoryItem{user, AgentItem([]byte(`{"type":"decision"}`))}}
	last, ok := env.Last()
	require.True(t, ok)
	assert.Equal(t, HistoryAgent, last.Role)
	assert.Equal(t, 1, env.Count(HistoryUser))
	assert.Equal(t, 1, env.Count(HistoryAgent))

	var empty *HistoryEnvelope
	_, ok = empty.Last()
	assert.False(t, ok)
}

func TestSchema(t *testing.T) {
	for _, mt := range []MsgType{TypeObservation, TypeActionProposal, TypeDecision, TypeFeedback} {
		t.Run(string(mt), func(t *testing.T) {
			s, err := Schema(mt)
			require.NoError(t, err)
			data, err := json.Marshal(s)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"content"`)
			assert.Contains(t, string(data), `"session_id"`)
		})
	}

	_, err := Schema("ping")
	assert.Error(t, err)
}
