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

// Package policy checks responder messages against the evaluation guardrails.
//
// Action proposals are checked for method, target domain and payload size.
// Decisions are checked for the presence of at least one answer form. Both
// checks are pure and never fail; they always return a verdict.
package policy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/kadirpekel/arena/pkg/protocol"
)

// Default guardrail values.
const (
	DefaultMaxBodyBytes = 200_000
)

// Notes attached to validation verdicts.
const (
	NotesOK            = "ok"
	NotesMissingAnswer = "missing answer"

	ViolationNoAnswer = "No answer provided"
)

// DefaultAllowedDomains returns the default domain allow-list.
func DefaultAllowedDomains() []string {
	return []string{"example.org", "localhost"}
}

// DefaultAllowMethods returns the default method allow-list.
func DefaultAllowMethods() []protocol.HTTPMethod {
	return []protocol.HTTPMethod{protocol.MethodGet, protocol.MethodPost}
}

// ProposalPolicy holds the guardrails applied to action proposals.
type ProposalPolicy struct {
	AllowedDomains []string
	MaxBodyBytes   int
	AllowMethods   []protocol.HTTPMethod
}

// Default returns the default guardrails.
func Default() ProposalPolicy {
	return ProposalPolicy{
		AllowedDomains: DefaultAllowedDomains(),
		MaxBodyBytes:   DefaultMaxBodyBytes,
		AllowMethods:   DefaultAllowMethods(),
	}
}

func (p ProposalPolicy) methodAllowed(m protocol.HTTPMethod) bool {
	for _, allowed := range p.AllowMethods {
		if strings.EqualFold(string(allowed), string(m)) {
			return true
		}
	}
	return false
}

func (p ProposalPolicy) domainAllowed(host string) bool {
	for _, d := range p.AllowedDomains {
		if strings.EqualFold(d, host) {
			return true
		}
	}
	return false
}

// ValidateActionProposal checks a proposal against the policy. All
// violations are collected; an empty list means the action is valid.
func ValidateActionProposal(p *protocol.ActionProposal, policy ProposalPolicy) protocol.FeedbackValidation {
	var violations []string
	action := p.Content.Action

	if !policy.methodAllowed(action.Kind) {
		violations = append(violations, fmt.Sprintf("method %s not allowed", action.Kind))
	}

	host, err := Hostname(action.Request.URL)
	switch {
	case err != nil:
		violations = append(violations, fmt.Sprintf("invalid url %q: %v", action.Request.URL, err))
	case host != "" && !policy.domainAllowed(host):
		violations = append(violations, fmt.Sprintf("domain %q is not in the allowed domains", host))
	}

	if v := checkBody("request body", action.Request.Body, policy.MaxBodyBytes); v != "" {
		violations = append(violations, v)
	}
	if exec := p.Content.WhiteAgentExecution; exec != nil {
		if v := checkBody("execution result body", exec.Result.Body, policy.MaxBodyBytes); v != "" {
			violations = append(violations, v)
		}
	}

	if len(violations) > 0 {
		return protocol.FeedbackValidation{
			ActionValid:      false,
			PolicyViolations: violations,
			Notes:            strings.Join(violations, "; "),
		}
	}
	return protocol.FeedbackValidation{
		ActionValid:      true,
		PolicyViolations: []string{},
		Notes:            NotesOK,
	}
}

// ValidateDecision reports whether the decision carries any answer: a
// non-empty answers list, ids list, text or series.
func ValidateDecision(d *protocol.Decision) protocol.FeedbackValidation {
	c := d.Content
	hasAnswer := len(c.Answers) > 0 ||
		len(c.IDs) > 0 ||
		(c.Text != nil && *c.Text != "") ||
		len(c.Series) > 0

	if !hasAnswer {
		return protocol.FeedbackValidation{
			ActionValid:      false,
			PolicyViolations: []string{ViolationNoAnswer},
			Notes:            NotesMissingAnswer,
		}
	}
	return protocol.FeedbackValidation{
		ActionValid:      true,
		PolicyViolations: []string{},
		Notes:            NotesOK,
	}
}

// Hostname extracts the lowercase host of rawURL, without port.
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}

// BodySize returns the length of the canonical JSON encoding of body.
// A nil body has size zero.
func BodySize(body map[string]any) (int, error) {
	if body == nil {
		return 0, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return 0, err
	}
	return len(canonical), nil
}

func checkBody(label string, body map[string]any, limit int) string {
	size, err := BodySize(body)
	if err != nil {
		return fmt.Sprintf("%s is not serializable: %v", label, err)
	}
	if size > limit {
		return fmt.Sprintf("%s is %d bytes, exceeds limit of %d", label, size, limit)
	}
	return ""
}
