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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/task"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	a := newSession("a", "ServiceAgent", "easy", task.FallbackTask())
	b := newSession("b", "ServiceAgent", "easy", task.FallbackTask())
	b.createdAt = a.createdAt.Add(time.Second)

	require.NoError(t, store.Put(ctx, b))
	require.NoError(t, store.Put(ctx, a))
	assert.ErrorIs(t, store.Put(ctx, a), ErrSessionExists)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = store.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "b", list[1].ID())
}

func TestSession_Snapshot(t *testing.T) {
	s := newSession("s", "ServiceAgent", "easy", task.FallbackTask())
	snap := s.Snapshot()
	assert.Equal(t, StateAwaitingTask, snap.State)
	assert.Equal(t, 1, snap.Turn)
	assert.Empty(t, snap.History)

	s.appendOutgoing(protocol.HistoryItem{Role: protocol.HistoryUser, Content: []byte(`{}`)})
	turn := s.appendReply([]byte(`{"type":"decision"}`))
	assert.Equal(t, 2, turn)

	snap = s.Snapshot()
	assert.Equal(t, StateAwaitingResponse, snap.State)
	assert.Len(t, snap.History, 2)
	assert.JSONEq(t, `{"type":"decision"}`, string(snap.LastWhite))

	// Mutating the snapshot does not affect the session.
	snap.History[0].Role = "tampered"
	snap.Task.GroundTruth.IDList[0] = "tampered"
	again := s.Snapshot()
	assert.Equal(t, protocol.HistoryUser, again.History[0].Role)
	assert.Equal(t, "Q-ROUTING-BILLING", again.Task.GroundTruth.IDList[0])
}

func TestState_IsTerminal(t *testing.T) {
	assert.False(t, StateAwaitingTask.IsTerminal())
	assert.False(t, StateAwaitingResponse.IsTerminal())
	assert.True(t, StateTerminalDecision.IsTerminal())
	assert.True(t, StateTerminalLimit.IsTerminal())
}
