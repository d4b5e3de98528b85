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

package definitions

import "regexp"

// quotedTerm matches text inside straight or smart quote pairs.
var quotedTerm = regexp.MustCompile("\"([^\"]+)\"|'([^']+)'|“([^”]+)”|‘([^’]+)’")

// capitalizedPhrase matches runs of capitalized words, e.g. "Market Data
// Subscriber". Individual words of a run are also tried against the map.
var capitalizedPhrase = regexp.MustCompile(`\b[A-Z][A-Za-z]*(?:[ \t][A-Z][A-Za-z]*)*\b`)

// Linker attaches defined-term context to a question and its surviving
// passages.
type Linker struct {
	store Store
}

// NewLinker creates a linker over a definitions store.
func NewLinker(store Store) *Linker {
	return &Linker{store: store}
}

// Link scans the question and each passage text for quoted terms and for
// capitalized phrases present in the source's definitions map. At most one
// Definition per unique term is returned, in order of first occurrence.
// Matching is case-insensitive exact on the normalized term.
func (l *Linker) Link(question string, passages []string, source string) []Definition {
	defs := l.store.Definitions(source)
	if len(defs) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var linked []Definition

	take := func(candidate string) {
		key := NormalizeTerm(candidate)
		if key == "" || seen[key] {
			return
		}
		if def, ok := defs[key]; ok {
			seen[key] = true
			linked = append(linked, def)
		}
	}

	scan := func(text string) {
		for _, groups := range quotedTerm.FindAllStringSubmatch(text, -1) {
			for _, g := range groups[1:] {
				if g != "" {
					take(g)
				}
			}
		}
		for _, phrase := range capitalizedPhrase.FindAllString(text, -1) {
			take(phrase)
			for _, word := range splitWords(phrase) {
				take(word)
			}
		}
	}

	scan(question)
	for _, passage := range passages {
		scan(passage)
	}
	return linked
}

func splitWords(phrase string) []string {
	var words []string
	start := -1
	for i := 0; i < len(phrase); i++ {
		if phrase[i] == ' ' || phrase[i] == '\t' {
			if start >= 0 {
				words = append(words, phrase[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, phrase[start:])
	}
	if len(words) <= 1 {
		return nil
	}
	return words
}
