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

package recordstore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	soqlPattern = regexp.MustCompile(`(?is)SELECT\s+(.+?)\s+FROM\s+(\w+)(?:\s+WHERE\s+(.+))?`)
	soslPattern = regexp.MustCompile(`(?i)FIND\s+\{(.+?)\}`)
	likePattern = regexp.MustCompile(`(?i)\s+LIKE\s+`)
)

// QueryResult is the response of a SOQL query. Error is set instead of
// failing when the query is malformed or names an unknown object.
type QueryResult struct {
	TotalSize int      `json:"totalSize"`
	Records   []Record `json:"records"`
	Error     string   `json:"error,omitempty"`
}

// SearchResult is the response of a SOSL search.
type SearchResult struct {
	SearchRecords []Record `json:"searchRecords"`
}

// Query runs a SOQL subset query. Only storage failures are returned as
// errors; query problems are reported in QueryResult.Error.
func (s *Store) Query(ctx context.Context, soql string) (QueryResult, error) {
	m := soqlPattern.FindStringSubmatch(strings.TrimSpace(soql))
	if m == nil {
		return QueryResult{Records: []Record{}, Error: "Malformed SOQL"}, nil
	}
	fieldList, objectName, where := m[1], m[2], strings.TrimSpace(m[3])

	object, ok, err := s.resolveObject(ctx, objectName)
	if err != nil {
		return QueryResult{}, err
	}
	if !ok {
		return QueryResult{Records: []Record{}, Error: fmt.Sprintf("Table %s not found", objectName)}, nil
	}

	records, err := s.records(ctx, object)
	if err != nil {
		return QueryResult{}, err
	}
	if where != "" {
		records = filter(records, where)
	}

	fields := splitFields(fieldList)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, project(r, fields))
	}
	return QueryResult{TotalSize: len(out), Records: out}, nil
}

// Search runs a SOSL subset search: every record with a field value
// containing the term, case-insensitively, tagged with its object type.
func (s *Store) Search(ctx context.Context, sosl string) (SearchResult, error) {
	m := soslPattern.FindStringSubmatch(sosl)
	if m == nil {
		return SearchResult{SearchRecords: []Record{}}, nil
	}
	term := strings.ToLower(m[1])

	all, err := s.allRecords(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	out := []Record{}
	for _, item := range all {
		if !matchesTerm(item.record, term) {
			continue
		}
		hit := Record{"attributes": map[string]any{"type": item.object}}
		for k, v := range item.record {
			hit[k] = v
		}
		out = append(out, hit)
	}
	return SearchResult{SearchRecords: out}, nil
}

func matchesTerm(r Record, term string) bool {
	for _, v := range r {
		if strings.Contains(strings.ToLower(stringify(v)), term) {
			return true
		}
	}
	return false
}

// filter applies a single "key = value" or "key LIKE value" condition.
// Equality is checked first, so a clause containing "=" is always an
// equality test.
func filter(records []Record, where string) []Record {
	var out []Record
	switch {
	case strings.Contains(where, "="):
		key, val, _ := strings.Cut(where, "=")
		key, val = strings.TrimSpace(key), unquote(val)
		for _, r := range records {
			if stringify(r[key]) == val {
				out = append(out, r)
			}
		}
	case likePattern.MatchString(where):
		parts := likePattern.Split(where, 2)
		key := strings.TrimSpace(parts[0])
		val := strings.ToLower(strings.ReplaceAll(unquote(parts[1]), "%", ""))
		for _, r := range records {
			v, ok := r[key]
			if !ok {
				v = ""
			}
			if strings.Contains(strings.ToLower(stringify(v)), val) {
				out = append(out, r)
			}
		}
	default:
		return records
	}
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "'")
	return strings.Trim(s, `"`)
}

func splitFields(list string) []string {
	parts := strings.Split(list, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		fields = append(fields, strings.TrimSpace(p))
	}
	return fields
}

// project keeps the requested fields plus Id. A "*" field keeps the whole record.
func project(r Record, fields []string) Record {
	for _, f := range fields {
		if f == "*" {
			return r
		}
	}
	out := Record{}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	if id, ok := r["Id"]; ok {
		out["Id"] = id
	}
	return out
}

// stringify renders a JSON value the way the query dialect compares it.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
