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

package mockwhite

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/recordstore"
	"github.com/kadirpekel/arena/pkg/relay"
	"github.com/kadirpekel/arena/pkg/session"
	"github.com/kadirpekel/arena/pkg/task"
)

var _ relay.Responder = (*Agent)(nil)

func envelope(t *testing.T, turn int, agentTurns int) *protocol.HistoryEnvelope {
	t.Helper()
	env := &protocol.HistoryEnvelope{}
	for range agentTurns {
		env.History = append(env.History, protocol.AgentItem([]byte(`{"type":"action_proposal"}`)))
	}
	obs := protocol.NewObservation("sess-1", turn, protocol.ObservationContent{
		Case: protocol.Case{ID: "t1", Instruction: "do it"},
	})
	item, err := protocol.UserItem(obs)
	require.NoError(t, err)
	env.History = append(env.History, item)
	return env
}

func seeded(t *testing.T) *recordstore.Store {
	t.Helper()
	ctx := context.Background()
	s, err := recordstore.Open(ctx, recordstore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Seed(ctx))
	return s
}

func TestTerm(t *testing.T) {
	assert.Equal(t, "billing", Term(1))
	assert.Equal(t, "refund", Term(2))
	assert.Equal(t, "acme", Term(5))
	assert.Equal(t, "billing", Term(6))
	assert.Equal(t, "billing", Term(0))
}

func TestReply_FirstTurnProposes(t *testing.T) {
	a := New()
	msg, err := a.Reply(context.Background(), envelope(t, 1, 0))
	require.NoError(t, err)

	p, ok := msg.(*protocol.ActionProposal)
	require.True(t, ok)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.Equal(t, 1, p.Turn)
	assert.Equal(t, protocol.RoleWhite, p.Role)
	assert.Equal(t, protocol.MethodGet, p.Content.Action.Kind)
	assert.Equal(t, "http://localhost/mock/kb?q=billing", p.Content.Action.Request.URL)
	require.NotNil(t, p.Content.WhiteAgentExecution)
	assert.Equal(t, http.StatusOK, p.Content.WhiteAgentExecution.Result.Status)
	assert.Empty(t, p.Content.WhiteAgentExecution.Result.Body["searchRecords"])
	require.NoError(t, p.Validate())
}

func TestReply_LaterTurnsDecide(t *testing.T) {
	a := New()
	msg, err := a.Reply(context.Background(), envelope(t, 3, 1))
	require.NoError(t, err)

	d, ok := msg.(*protocol.Decision)
	require.True(t, ok)
	assert.Equal(t, 3, d.Turn)
	assert.Equal(t, []string{"000-DUMMY"}, d.Content.IDs)
	assert.InDelta(t, 0.1, d.Content.Confidence, 1e-9)
	require.NotNil(t, d.Content.Text)
	assert.Equal(t, "dummy answer", *d.Content.Text)
	assert.Equal(t, []float64{10, 20, 30}, d.Content.Series)
}

func TestReply_EmptyHistory(t *testing.T) {
	msg, err := New().Reply(context.Background(), &protocol.HistoryEnvelope{})
	require.NoError(t, err)
	assert.Equal(t, "unknown", msg.Envelope().SessionID)
	assert.Equal(t, 1, msg.Envelope().Turn)
}

func TestReply_SearcherFillsExecution(t *testing.T) {
	a := New(WithSearcher(seeded(t)))
	msg, err := a.Reply(context.Background(), envelope(t, 1, 0))
	require.NoError(t, err)

	body := msg.(*protocol.ActionProposal).Content.WhiteAgentExecution.Result.Body
	records, ok := body["searchRecords"].([]recordstore.Record)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "500-DEMO-001", records[0]["Id"])
}

func TestReply_GreenURLFillsExecution(t *testing.T) {
	var gotQuery string
	green := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"searchRecords":[{"Id":"001","attributes":{"type":"Account"}}]}`))
	}))
	defer green.Close()

	a := New(WithGreenURL(green.URL + "/"))
	msg, err := a.Reply(context.Background(), envelope(t, 5, 0))
	require.NoError(t, err)

	assert.Equal(t, "FIND {acme}", gotQuery)
	records := msg.(*protocol.ActionProposal).Content.WhiteAgentExecution.Result.Body["searchRecords"].([]recordstore.Record)
	require.Len(t, records, 1)
	assert.Equal(t, "001", records[0]["Id"])
}

func TestReply_GreenDownStillProposes(t *testing.T) {
	green := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer green.Close()

	msg, err := New(WithGreenURL(green.URL)).Reply(context.Background(), envelope(t, 1, 0))
	require.NoError(t, err)
	_, ok := msg.(*protocol.ActionProposal)
	assert.True(t, ok)
}

func TestHandler(t *testing.T) {
	h := New().Handler()

	body, err := json.Marshal(envelope(t, 2, 1))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, StepPath, bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	msg, err := protocol.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeDecision, msg.Envelope().Type)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, StepPath, bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a2a/card", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arena-mock-white")
}

func TestEpisodeOverHTTP(t *testing.T) {
	white := httptest.NewServer(New(WithSearcher(seeded(t))).Handler())
	defer white.Close()

	responder := relay.NewHTTPResponder(white.URL + StepPath)
	card, err := responder.Card(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.Version, card["protocol"])

	catalog := task.NewCatalog([]task.Task{task.FallbackTask()}, task.MatchStrict)
	engine := session.NewEngine(catalog, responder, session.DefaultConfig())
	ctx := context.Background()

	first, err := engine.Start(ctx, "ServiceAgent", "easy")
	require.NoError(t, err)
	require.NotNil(t, first.Feedback)
	assert.True(t, first.Feedback.Content.Validation.ActionValid)

	final, err := engine.Continue(ctx, first.SessionID)
	require.NoError(t, err)
	assert.True(t, final.Done)
	require.NotNil(t, final.Scores)
	require.NotNil(t, final.Scores.EM)
	assert.Equal(t, 0, *final.Scores.EM)
}
