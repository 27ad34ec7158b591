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

// Package task holds the evaluation task catalog.
//
// A catalog is loaded once at startup from a file source, falling back to
// a single built-in task when the source is unavailable or yields nothing.
// Tasks are immutable after load; Pick hands out deep copies.
package task

import (
	"errors"
	"fmt"
	"slices"
)

// ErrTaskNotFound is returned when no task matches a selection.
var ErrTaskNotFound = errors.New("task not found")

// Criterion names the scoring function for a task.
type Criterion string

const (
	CriterionExactMatchIDs Criterion = "exact_match_ids"
	CriterionF1            Criterion = "f1"
	CriterionMAPE          Criterion = "mape"
)

// Criteria lists the supported criteria.
func Criteria() []Criterion {
	return []Criterion{CriterionExactMatchIDs, CriterionF1, CriterionMAPE}
}

// Known reports whether c is a supported criterion.
func (c Criterion) Known() bool {
	return slices.Contains(Criteria(), c)
}

// GroundTruth is the expected answer. Which field is used depends on the
// task's criterion.
type GroundTruth struct {
	IDList       []string  `json:"id_list,omitempty" yaml:"id_list,omitempty"`
	AnswerTokens []string  `json:"answer_tokens,omitempty" yaml:"answer_tokens,omitempty"`
	Series       []float64 `json:"series,omitempty" yaml:"series,omitempty"`
}

// Task is one evaluation item.
type Task struct {
	ID              string      `json:"task_id" yaml:"task_id"`
	Persona         string      `json:"persona" yaml:"persona"`
	Difficulty      string      `json:"difficulty" yaml:"difficulty"`
	Instruction     string      `json:"instruction" yaml:"instruction"`
	SuccessCriteria Criterion   `json:"success_criteria" yaml:"success_criteria"`
	GroundTruth     GroundTruth `json:"ground_truth" yaml:"ground_truth"`
	OriginalSkill   string      `json:"original_skill,omitempty" yaml:"original_skill,omitempty"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	t.GroundTruth = GroundTruth{
		IDList:       slices.Clone(t.GroundTruth.IDList),
		AnswerTokens: slices.Clone(t.GroundTruth.AnswerTokens),
		Series:       slices.Clone(t.GroundTruth.Series),
	}
	return t
}

// MatchMode controls how Pick treats a selection with no exact match.
type MatchMode string

const (
	// MatchStrict requires both persona and difficulty to match.
	MatchStrict MatchMode = "strict"
	// MatchLenient falls back to a persona-only match, then to the first task.
	MatchLenient MatchMode = "lenient"
)

// ParseMatchMode parses a match mode name. An empty name is strict.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case "", MatchStrict:
		return MatchStrict, nil
	case MatchLenient:
		return MatchLenient, nil
	default:
		return "", fmt.Errorf("unknown match mode %q (valid: strict, lenient)", s)
	}
}

// Catalog is an ordered, read-only collection of tasks.
type Catalog struct {
	tasks  []Task
	mode   MatchMode
	source string
}

// NewCatalog builds a catalog over a copy of tasks.
func NewCatalog(tasks []Task, mode MatchMode) *Catalog {
	owned := make([]Task, len(tasks))
	for i, t := range tasks {
		owned[i] = t.Clone()
	}
	if mode == "" {
		mode = MatchStrict
	}
	return &Catalog{tasks: owned, mode: mode}
}

// Len returns the number of tasks.
func (c *Catalog) Len() int { return len(c.tasks) }

// Source names where the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Mode returns the selection mode.
func (c *Catalog) Mode() MatchMode { return c.mode }

// IDs returns up to n task ids in catalog order. n <= 0 returns all.
func (c *Catalog) IDs(n int) []string {
	if n <= 0 || n > len(c.tasks) {
		n = len(c.tasks)
	}
	ids := make([]string, 0, n)
	for _, t := range c.tasks[:n] {
		ids = append(ids, t.ID)
	}
	return ids
}

// Tasks returns copies of all tasks.
func (c *Catalog) Tasks() []Task {
	out := make([]Task, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns the task with the given id.
func (c *Catalog) Get(id string) (Task, error) {
	for _, t := range c.tasks {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return Task{}, fmt.Errorf("%w: id %q", ErrTaskNotFound, id)
}

// Pick returns the first task whose persona and difficulty both match.
// In lenient mode it falls back to the first task with the persona, then
// to the first task in the catalog.
func (c *Catalog) Pick(persona, difficulty string) (Task, error) {
	for _, t := range c.tasks {
		if t.Persona == persona && t.Difficulty == difficulty {
			return t.Clone(), nil
		}
	}

	if c.mode == MatchLenient {
		for _, t := range c.tasks {
			if t.Persona == persona {
				return t.Clone(), nil
			}
		}
		if len(c.tasks) > 0 {
			return c.tasks[0].Clone(), nil
		}
	}

	return Task{}, fmt.Errorf("%w for persona=%s difficulty=%s", ErrTaskNotFound, persona, difficulty)
}
