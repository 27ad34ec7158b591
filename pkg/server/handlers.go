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

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/session"
)

// sampleTaskIDs is how many task ids the card lists.
const sampleTaskIDs = 5

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Detail string `json:"detail"`
}

// cardResponse is the lightweight capability card at /a2a/card.
type cardResponse struct {
	Protocol      string   `json:"protocol"`
	Capabilities  []string `json:"capabilities"`
	TasksLoaded   int      `json:"tasks_loaded"`
	SampleTaskIDs []string `json:"sample_task_ids"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	persona := queryOr(r, "persona", DefaultPersona)
	difficulty := queryOr(r, "difficulty", DefaultDifficulty)

	reaction, err := s.engine.Start(r.Context(), persona, difficulty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reaction)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "session_id is required"})
		return
	}

	reaction, err := s.engine.Continue(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reaction)
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	catalog := s.engine.Catalog()
	writeJSON(w, http.StatusOK, cardResponse{
		Protocol:      protocol.Version,
		Capabilities:  []string{"observation", "feedback"},
		TasksLoaded:   catalog.Len(),
		SampleTaskIDs: catalog.IDs(sampleTaskIDs),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.engine.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSOQL(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "record store not configured"})
		return
	}
	result, err := s.records.Query(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSOSL(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "record store not configured"})
		return
	}
	result, err := s.records.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrTaskNotFound),
		errors.Is(err, session.ErrInvalidDecision):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionTerminal):
		return http.StatusConflict
	case errors.Is(err, session.ErrResponderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		detail = "session not found"
	case status == http.StatusInternalServerError:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		detail = "internal error"
	default:
		s.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeJSON encodes v before touching the status line so an encoding
// failure still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Detail: "internal error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func queryOr(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}
