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

// Package arena is an A2A evaluation harness.
//
// The coordinator (the "green" party) hands a task to an external
// responder (the "white" party), relays structured messages back and
// forth, validates every proposed action against a policy and scores the
// final decision against the task's ground truth.
//
// # Quick Start
//
// Run the mock responder and the coordinator side by side:
//
//	arena white --port 9100
//	arena serve --config configs/arena.yaml
//
// Then open a session:
//
//	curl -X POST 'http://localhost:9101/a2a/start?persona=ServiceAgent&difficulty=easy'
//
// Or run a whole episode in-process:
//
//	arena run --local --persona ServiceAgent --difficulty easy
//
// # Packages
//
//   - pkg/protocol: message model, parsing and JSON Schemas
//   - pkg/policy: action proposal guardrails
//   - pkg/evaluation: exact match, F1, MAPE and confidentiality scoring
//   - pkg/session: the session state machine
//   - pkg/task: task catalogs
//   - pkg/relay: the responder transport
//   - pkg/recordstore: SOQL/SOSL subset over SQL tables
//   - pkg/server: the coordinator's HTTP surface
//   - pkg/mockwhite: a hardcoded responder for local runs
//   - pkg/mcpserver: MCP tools over the session engine
package arena
