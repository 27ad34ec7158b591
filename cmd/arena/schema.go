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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/arena/pkg/config"
	"github.com/kadirpekel/arena/pkg/protocol"
)

// SchemaCmd prints JSON Schemas for the wire messages or the config file.
type SchemaCmd struct {
	Type    string `short:"t" help:"Schema to print: observation, action_proposal, decision, feedback, config or all." default:"all" enum:"observation,action_proposal,decision,feedback,config,all"`
	Compact bool   `help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run() error {
	return writeSchema(os.Stdout, c.Type, c.Compact)
}

func writeSchema(w io.Writer, kind string, compact bool) error {
	var out any
	switch kind {
	case "config":
		out = configSchema()
	case "all":
		all := make(map[string]*jsonschema.Schema)
		for _, t := range []protocol.MsgType{protocol.TypeObservation, protocol.TypeActionProposal, protocol.TypeDecision, protocol.TypeFeedback} {
			s, err := protocol.Schema(t)
			if err != nil {
				return err
			}
			all[string(t)] = s
		}
		out = all
	default:
		s, err := protocol.Schema(protocol.MsgType(kind))
		if err != nil {
			return err
		}
		out = s
	}

	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}

func configSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}
	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://arena.dev/schemas/config.json"
	schema.Title = "Arena Configuration Schema"
	schema.Description = "Configuration for the arena coordinator"
	schema.Version = "http://json-schema.org/draft-07/schema#"
	return schema
}
