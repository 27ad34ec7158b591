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
	"fmt"

	"github.com/invopop/jsonschema"
)

// JSONSchema restricts the method to the supported verbs.
func (HTTPMethod) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{string(MethodGet), string(MethodPost)},
	}
}

// JSONSchema lists the known message types.
func (MsgType) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{
			string(TypeObservation),
			string(TypeActionProposal),
			string(TypeDecision),
			string(TypeFeedback),
		},
	}
}

// Schema generates the JSON Schema for one message type.
func Schema(t MsgType) (*jsonschema.Schema, error) {
	var target any
	var description string
	switch t {
	case TypeObservation:
		target, description = &Observation{}, "Task statement or follow-up prompt sent by the green agent."
	case TypeActionProposal:
		target, description = &ActionProposal{}, "HTTP call proposed (and optionally executed) by the white agent."
	case TypeDecision:
		target, description = &Decision{}, "Final answer submitted by the white agent."
	case TypeFeedback:
		target, description = &Feedback{}, "Validation verdict returned by the green agent."
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}

	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(target)
	schema.ID = jsonschema.ID(fmt.Sprintf("https://arena.dev/schemas/%s.json", t))
	schema.Title = fmt.Sprintf("A2A %s", t)
	schema.Description = description
	return schema, nil
}
