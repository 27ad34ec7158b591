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

package observability

const (
	DefaultServiceName  = "arena"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"

	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Span attribute keys.
const (
	AttrSessionID      = "arena.session_id"
	AttrTaskID         = "arena.task_id"
	AttrTurn           = "arena.turn"
	AttrMessageType    = "arena.message_type"
	AttrState          = "arena.state"
	AttrPersona        = "arena.persona"
	AttrDifficulty     = "arena.difficulty"
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrErrorType      = "error.type"
)

// Span names.
const (
	SpanSessionStart    = "session.start"
	SpanSessionContinue = "session.continue"
	SpanResponderStep   = "responder.step"
	SpanHTTPRequest     = "http.request"
)
