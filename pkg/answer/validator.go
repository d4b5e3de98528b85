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

package answer

import (
	"fmt"
	"strings"
)

// Validate checks the output contract. Non-refusal answers must carry
// non-empty Answer, Supporting Clauses and Citations sections; refusals
// only the Answer section. Violations are recorded in the audit log but
// the answer is still returned to the caller.
func Validate(text string, refused bool) []string {
	var errs []string

	if refused {
		if body, ok := section(text, "## Answer"); !ok || body == "" {
			errs = append(errs, "refusal missing ## Answer section")
		}
		return errs
	}

	for _, title := range []string{"## Answer", "## Supporting Clauses", "## Citations"} {
		body, ok := section(text, title)
		if !ok {
			errs = append(errs, fmt.Sprintf("missing %s section", title))
			continue
		}
		if body == "" {
			errs = append(errs, fmt.Sprintf("empty %s section", title))
		}
	}
	return errs
}

// section extracts the trimmed body between a section heading and the next
// "## " heading or end of text.
func section(text, title string) (string, bool) {
	idx := strings.Index(text, title)
	if idx < 0 {
		return "", false
	}
	body := text[idx+len(title):]
	if next := strings.Index(body, "\n## "); next >= 0 {
		body = body[:next]
	}
	return strings.TrimSpace(body), true
}
