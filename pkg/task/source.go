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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLimit caps how many dataset rows a file source maps to tasks.
const DefaultLimit = 50

// ErrEmptySource is returned by a source that loaded but produced no tasks.
var ErrEmptySource = errors.New("source produced no tasks")

// Source loads tasks.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Task, error)
}

// BuiltinSource serves the single fallback task.
type BuiltinSource struct{}

// Name implements Source.
func (BuiltinSource) Name() string { return "builtin" }

// Load implements Source.
func (BuiltinSource) Load(context.Context) ([]Task, error) {
	return []Task{FallbackTask()}, nil
}

// FallbackTask is the task served when no catalog file is available.
func FallbackTask() Task {
	return Task{
		ID:              "fallback_01",
		Persona:         "ServiceAgent",
		Difficulty:      "easy",
		Instruction:     "Find the queue handling Billing cases (Fallback Mode).",
		SuccessCriteria: CriterionExactMatchIDs,
		GroundTruth:     GroundTruth{IDList: []string{"Q-ROUTING-BILLING"}},
	}
}

// FileSource reads tasks from disk.
//
// Files ending in .yaml, .yml or .json hold a catalog document with a
// top-level "tasks" list and are validated against the catalog schema.
// Files ending in .jsonl hold dataset rows (query/question/instruction,
// answer, skill) which are mapped to tasks, up to Limit rows.
type FileSource struct {
	Path  string
	Limit int
}

// Name implements Source.
func (s FileSource) Name() string { return s.Path }

// Load implements Source.
func (s FileSource) Load(ctx context.Context) ([]Task, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tasks []Task
	switch ext := strings.ToLower(filepath.Ext(s.Path)); ext {
	case ".yaml", ".yml", ".json":
		tasks, err = parseCatalogDocument(data)
	case ".jsonl":
		tasks, err = parseDatasetRows(ctx, data, s.limit())
	default:
		return nil, fmt.Errorf("unsupported task file extension %q (valid: .yaml, .yml, .json, .jsonl)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.Path, err)
	}
	if len(tasks) == 0 {
		return nil, ErrEmptySource
	}
	return tasks, nil
}

func (s FileSource) limit() int {
	if s.Limit <= 0 {
		return DefaultLimit
	}
	return s.Limit
}

type catalogDocument struct {
	Tasks []Task `json:"tasks"`
}

func parseCatalogDocument(data []byte) ([]Task, error) {
	// YAML is a superset of JSON, so one decoder handles both.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("invalid YAML/JSON: %w", err)
	}

	// Round-trip through JSON so the validator and the struct decoder both
	// see plain JSON values.
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	if err := validateCatalog(normalized); err != nil {
		return nil, err
	}

	var doc catalogDocument
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task_id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return doc.Tasks, nil
}

// DatasetRow is one record of a CRM benchmark export.
type DatasetRow struct {
	Query       string `json:"query"`
	Question    string `json:"question"`
	Instruction string `json:"instruction"`
	Answer      any    `json:"answer"`
	Skill       string `json:"skill"`
}

var skillPersonas = map[string]string{
	"Workflow Execution":    "ServiceAgent",
	"Database Querying":     "Analyst",
	"Numerical Computation": "Manager",
}

// FromDatasetRow maps the i-th dataset row to a task.
func FromDatasetRow(i int, row DatasetRow) Task {
	instruction := firstNonEmpty(row.Query, row.Question, row.Instruction, "Unknown instruction")
	answer := answerString(row.Answer)
	skill := row.Skill
	if skill == "" {
		skill = "General"
	}
	persona, ok := skillPersonas[skill]
	if !ok {
		persona = "ServiceAgent"
	}

	t := Task{
		ID:              fmt.Sprintf("hf_crm_%d", i),
		Persona:         persona,
		Difficulty:      "medium",
		Instruction:     instruction,
		SuccessCriteria: CriterionF1,
		GroundTruth:     GroundTruth{AnswerTokens: strings.Fields(answer)},
		OriginalSkill:   skill,
	}

	switch {
	case strings.Contains(skill, "Workflow"):
		t.SuccessCriteria = CriterionExactMatchIDs
		t.GroundTruth = GroundTruth{IDList: []string{answer}}
	case strings.Contains(skill, "Numerical"):
		t.SuccessCriteria = CriterionMAPE
		t.GroundTruth = GroundTruth{Series: parseSeriesAnswer(answer)}
	}
	return t
}

func parseDatasetRows(ctx context.Context, data []byte, limit int) ([]Task, error) {
	var tasks []Task
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() && len(tasks) < limit {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var row DatasetRow
		if err := json.Unmarshal(text, &row); err != nil {
			slog.WarnContext(ctx, "Skipping malformed dataset row", "line", line, "error", err)
			continue
		}
		tasks = append(tasks, FromDatasetRow(len(tasks), row))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// parseSeriesAnswer reads a numeric answer as either a JSON list or a
// single number. Single quotes are accepted as string delimiters.
// Unparseable answers yield an empty series.
func parseSeriesAnswer(answer string) []float64 {
	clean := strings.ReplaceAll(answer, "'", `"`)
	if strings.Contains(clean, "[") {
		var values []any
		if err := json.Unmarshal([]byte(clean), &values); err != nil {
			return []float64{}
		}
		series := make([]float64, 0, len(values))
		for _, v := range values {
			f, ok := toFloat(v)
			if !ok {
				return []float64{}
			}
			series = append(series, f)
		}
		return series
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil {
		return []float64{}
	}
	return []float64{f}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func answerString(v any) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	default:
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Sprint(a)
		}
		return string(data)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// LoadCatalog loads tasks from primary and falls back to fallback when
// primary fails or is empty. A nil primary goes straight to fallback.
func LoadCatalog(ctx context.Context, primary, fallback Source, mode MatchMode) (*Catalog, error) {
	if primary != nil {
		tasks, err := primary.Load(ctx)
		if err == nil {
			c := NewCatalog(tasks, mode)
			c.source = primary.Name()
			slog.Info("Loaded task catalog", "source", c.source, "tasks", c.Len())
			return c, nil
		}
		slog.Warn("Failed to load task catalog, using fallback", "source", primary.Name(), "error", err)
	}

	if fallback == nil {
		fallback = BuiltinSource{}
	}
	tasks, err := fallback.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("fallback %s: %w", fallback.Name(), ErrEmptySource)
	}
	c := NewCatalog(tasks, mode)
	c.source = fallback.Name()
	slog.Info("Loaded task catalog", "source", c.source, "tasks", c.Len())
	return c, nil
}
