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

package retrieval

import "strings"

// questionPrefixes are stripped from the front of a question, first match
// wins. Longer variants are listed before their shorter overlaps.
var questionPrefixes = []string{
	"what is",
	"what are",
	"what's",
	"can you",
	"could you",
	"would you",
	"please explain",
	"please tell me",
	"how does",
	"how do",
	"how is",
	"tell me about",
	"explain",
}

// fillerWords are dropped from the tokenized query. Closed set.
var fillerWords = map[string]bool{
	"the": true, "a": true, "an": true,
	"is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "me": true, "my": true,
	"we": true, "our": true,
	"you": true, "your": true,
}

// Normalize turns a natural-language question into a keyword-oriented
// query: lowercase, strip a leading question prefix, drop filler words,
// strip trailing question/period punctuation.
//
// Pure and idempotent. If every token is a filler word the lowercased,
// trimmed original is returned unchanged so the query is never empty for
// non-empty input.
func Normalize(question string) string {
	lowered := strings.ToLower(strings.TrimSpace(question))
	q := lowered

	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(q, prefix) {
			rest := q[len(prefix):]
			if rest == "" || rest[0] == ' ' {
				q = strings.TrimSpace(rest)
				break
			}
		}
	}

	q = strings.TrimSpace(strings.TrimRight(q, "?."))

	kept := make([]string, 0, 8)
	for _, token := range strings.Fields(q) {
		if fillerWords[token] {
			continue
		}
		kept = append(kept, token)
	}

	if len(kept) == 0 {
		return lowered
	}
	return strings.Join(kept, " ")
}

// QueryTokens splits a normalized query into lexical search tokens.
func QueryTokens(normalized string) []string {
	return strings.Fields(normalized)
}
