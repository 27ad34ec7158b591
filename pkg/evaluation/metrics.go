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

package evaluation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kadirpekel/arena/pkg/protocol"
)

// mapeEpsilon guards against division by zero for near-zero gold values.
const mapeEpsilon = 1e-9

// Tokens lowercases s and splits it on whitespace.
func Tokens(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// F1 computes the set-based token F1 between pred and gold, rounded to
// three decimals. Either side empty scores 0.
func F1(pred string, gold []string) float64 {
	p, g := toSet(Tokens(pred)), toSet(gold)
	if len(p) == 0 || len(g) == 0 {
		return 0
	}
	inter := 0
	for tok := range p {
		if _, ok := g[tok]; ok {
			inter++
		}
	}
	return round3(2 * float64(inter) / float64(len(p)+len(g)))
}

// ExactMatch returns 1 when pred and gold contain the same distinct ids,
// ignoring order and duplicates.
func ExactMatch(pred, gold []string) int {
	p, g := toSet(pred), toSet(gold)
	if len(p) != len(g) {
		return 0
	}
	for id := range p {
		if _, ok := g[id]; !ok {
			return 0
		}
	}
	return 1
}

// MAPE computes the mean absolute percentage error, rounded to three
// decimals. Mismatched lengths, an empty gold series or a non-finite
// result score 1.0.
func MAPE(pred, gold []float64) float64 {
	if len(pred) != len(gold) || len(gold) == 0 {
		return 1.0
	}
	var total float64
	for i, g := range gold {
		denom := math.Abs(g)
		if denom <= mapeEpsilon {
			denom = mapeEpsilon
		}
		total += math.Abs(pred[i]-g) / denom
	}
	mape := total / float64(len(gold))
	if math.IsNaN(mape) || math.IsInf(mape, 0) {
		return 1.0
	}
	return round3(mape)
}

// ExtractIDs returns the decision's ids, or its first answer when ids
// were not supplied.
func ExtractIDs(c protocol.DecisionContent) []string {
	if c.IDs != nil {
		return c.IDs
	}
	if len(c.Answers) > 0 {
		return []string{c.Answers[0]}
	}
	return []string{}
}

// ExtractText returns the decision's text, or its first answer when text
// was not supplied.
func ExtractText(c protocol.DecisionContent) string {
	if c.Text != nil {
		return *c.Text
	}
	if len(c.Answers) > 0 {
		return c.Answers[0]
	}
	return ""
}

// ExtractSeries returns the decision's series. When no series was
// supplied it parses the first answer as a JSON list. The boolean is false
// when the parsed list holds a non-numeric element.
func ExtractSeries(c protocol.DecisionContent) ([]float64, bool) {
	if c.Series != nil {
		return c.Series, true
	}
	if len(c.Answers) == 0 {
		return []float64{}, true
	}

	var parsed any
	if err := json.Unmarshal([]byte(c.Answers[0]), &parsed); err != nil {
		return []float64{}, true
	}
	list, ok := parsed.([]any)
	if !ok {
		return []float64{}, true
	}

	series := make([]float64, 0, len(list))
	for _, v := range list {
		switch n := v.(type) {
		case float64:
			series = append(series, n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, false
			}
			series = append(series, f)
		default:
			return nil, false
		}
	}
	return series, true
}
