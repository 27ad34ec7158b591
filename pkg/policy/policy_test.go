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

package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/arena/pkg/protocol"
)

func proposal(kind protocol.HTTPMethod, rawURL string, body map[string]any) *protocol.ActionProposal {
	return protocol.NewActionProposal("s", 1, protocol.ActionContent{
		Action: protocol.HTTPAction{
			Kind:    kind,
			Request: protocol.HTTPRequest{URL: rawURL, Body: body},
		},
	})
}

func TestValidateActionProposal(t *testing.T) {
	tests := []struct {
		name       string
		proposal   *protocol.ActionProposal
		policy     ProposalPolicy
		valid      bool
		violations []string
	}{
		{
			name:     "allowed GET",
			proposal: proposal(protocol.MethodGet, "http://localhost/mock/kb?q=billing", nil),
			policy:   Default(),
			valid:    true,
		},
		{
			name:     "host matching ignores case and port",
			proposal: proposal(protocol.MethodGet, "https://EXAMPLE.org:8443/path", nil),
			policy:   Default(),
			valid:    true,
		},
		{
			name:     "relative url has no host",
			proposal: proposal(protocol.MethodGet, "/salesforce/soql?q=x", nil),
			policy:   Default(),
			valid:    true,
		},
		{
			name:       "disallowed domain",
			proposal:   proposal(protocol.MethodGet, "http://evil.com/x", nil),
			policy:     Default(),
			violations: []string{"evil.com"},
		},
		{
			name:     "method not in allow list",
			proposal: proposal(protocol.MethodPost, "http://localhost/x", nil),
			policy: ProposalPolicy{
				AllowedDomains: []string{"localhost"},
				MaxBodyBytes:   100,
				AllowMethods:   []protocol.HTTPMethod{protocol.MethodGet},
			},
			violations: []string{"method POST"},
		},
		{
			name:     "oversized body",
			proposal: proposal(protocol.MethodPost, "http://localhost/x", map[string]any{"q": strings.Repeat("a", 64)}),
			policy: ProposalPolicy{
				AllowedDomains: []string{"localhost"},
				MaxBodyBytes:   32,
				AllowMethods:   DefaultAllowMethods(),
			},
			violations: []string{"request body"},
		},
		{
			name:     "multiple violations are all reported",
			proposal: proposal(protocol.MethodPost, "http://evil.com/x", map[string]any{"q": strings.Repeat("a", 64)}),
			policy: ProposalPolicy{
				AllowedDomains: []string{"localhost"},
				MaxBodyBytes:   32,
				AllowMethods:   []protocol.HTTPMethod{protocol.MethodGet},
			},
			violations: []string{"method POST", "evil.com", "request body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateActionProposal(tt.proposal, tt.policy)
			assert.Equal(t, tt.valid, got.ActionValid)
			require.Len(t, got.PolicyViolations, len(tt.violations))
			for i, want := range tt.violations {
				assert.Contains(t, got.PolicyViolations[i], want)
			}
			if tt.valid {
				assert.Equal(t, NotesOK, got.Notes)
			} else {
				assert.Equal(t, strings.Join(got.PolicyViolations, "; "), got.Notes)
			}
		})
	}
}

func TestValidateActionProposal_NotesJoinViolations(t *testing.T) {
	pol := Default()
	pol.AllowMethods = []protocol.HTTPMethod{protocol.MethodPost}

	got := ValidateActionProposal(proposal(protocol.MethodGet, "https://evil.com/x", nil), pol)
	assert.False(t, got.ActionValid)
	assert.Equal(t, []string{
		"method GET not allowed",
		`domain "evil.com" is not in the allowed domains`,
	}, got.PolicyViolations)
	assert.Equal(t, `method GET not allowed; domain "evil.com" is not in the allowed domains`, got.Notes)
}

func TestValidateActionProposal_ExecutionBody(t *testing.T) {
	p := proposal(protocol.MethodGet, "http://localhost/x", nil)
	p.Content.WhiteAgentExecution = &protocol.WhiteExecution{
		Request: protocol.HTTPRequest{URL: "http://localhost/x"},
		Result: protocol.ExecutedResult{
			Status: 200,
			Body:   map[string]any{"records": strings.Repeat("x", 100)},
		},
	}
	pol := Default()
	pol.MaxBodyBytes = 50

	got := ValidateActionProposal(p, pol)
	assert.False(t, got.ActionValid)
	require.Len(t, got.PolicyViolations, 1)
	assert.Contains(t, got.PolicyViolations[0], "execution result body")
}

func TestValidateDecision(t *testing.T) {
	empty := ""
	text := "dummy answer"

	tests := []struct {
		name    string
		content protocol.DecisionContent
		valid   bool
	}{
		{name: "nothing", content: protocol.DecisionContent{}, valid: false},
		{name: "empty forms", content: protocol.DecisionContent{Answers: []string{}, IDs: []string{}, Text: &empty, Series: []float64{}}, valid: false},
		{name: "answers", content: protocol.DecisionContent{Answers: []string{"x"}}, valid: true},
		{name: "ids", content: protocol.DecisionContent{IDs: []string{"A"}}, valid: true},
		{name: "text", content: protocol.DecisionContent{Text: &text}, valid: true},
		{name: "series", content: protocol.DecisionContent{Series: []float64{1}}, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDecision(protocol.NewDecision("s", 2, tt.content))
			assert.Equal(t, tt.valid, got.ActionValid)
			if tt.valid {
				assert.Equal(t, NotesOK, got.Notes)
				assert.Empty(t, got.PolicyViolations)
			} else {
				assert.Equal(t, NotesMissingAnswer, got.Notes)
				assert.Equal(t, []string{ViolationNoAnswer}, got.PolicyViolations)
			}
		})
	}
}

func TestBodySize(t *testing.T) {
	n, err := BodySize(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	// canonical form sorts keys and drops whitespace
	n, err = BodySize(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, len(`{"a":"x","b":1}`), n)
}
