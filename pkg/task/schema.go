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

package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const catalogSchemaURL = "https://arena.dev/schemas/task-catalog.json"

// CatalogSchema is the JSON Schema every catalog document must satisfy.
const CatalogSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["task_id", "persona", "difficulty", "instruction", "success_criteria", "ground_truth"],
        "properties": {
          "task_id": {"type": "string", "minLength": 1},
          "persona": {"type": "string", "minLength": 1},
          "difficulty": {"type": "string", "minLength": 1},
          "instruction": {"type": "string"},
          "success_criteria": {"enum": ["exact_match_ids", "f1", "mape"]},
          "ground_truth": {
            "type": "object",
            "properties": {
              "id_list": {"type": "array", "items": {"type": "string"}},
              "answer_tokens": {"type": "array", "items": {"type": "string"}},
              "series": {"type": "array", "items": {"type": "number"}}
            }
          },
          "original_skill": {"type": "string"}
        }
      }
    }
  }
}`

var compiledCatalogSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(catalogSchemaURL, strings.NewReader(CatalogSchema)); err != nil {
		return nil, fmt.Errorf("failed to add catalog schema: %w", err)
	}
	return c.Compile(catalogSchemaURL)
})

func validateCatalog(doc []byte) error {
	schema, err := compiledCatalogSchema()
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("catalog does not match schema: %w", err)
	}
	return nil
}
