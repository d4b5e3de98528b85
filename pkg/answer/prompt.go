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

// Package answer renders the grounded answer-generation prompt, issues the
// single generation call, and validates the output contract.
package answer

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/lexrag/pkg/definitions"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
)

// systemPrompt forbids external knowledge and fixes the output structure.
// It is immutable; the per-request refusal string is carried in the user
// prompt because it interpolates the source name.
const systemPrompt = `You are a compliance assistant answering questions about legal and licensing documents. You must follow these rules without exception:

1. Answer ONLY from the document excerpts provided in the context. Never use outside knowledge, never infer beyond what the text states.
2. Structure every answer with exactly these markdown sections, in order:
   ## Answer
   A direct answer to the question.
   ## Supporting Clauses
   Verbatim quotes from the excerpts that support the answer, each followed by its citation (document, section, pages).
   ## Definitions
   Only if defined terms were provided and are relevant; otherwise omit this section.
   ## Citations
   One line per cited excerpt in the form: document | section | pages.
3. If the context does not fully answer the question, respond with ONLY a "## Answer" section containing exactly the refusal sentence given in the request, byte for byte, and nothing else.
4. Quote exactly. Do not paraphrase inside the Supporting Clauses section.`

// RefusalString returns the canonical refusal sentence. The source tag is
// the first requested source upper-cased; "CME" when the request named no
// source. Byte-identical output is contractual: callers detect refusals by
// exact string comparison.
func RefusalString(requestedSources []string) string {
	tag := "CME"
	if len(requestedSources) > 0 {
		tag = strings.ToUpper(requestedSources[0])
	}
	return fmt.Sprintf("This is not addressed in the provided %s documents.", tag)
}

// FormatChunk renders one context excerpt exactly as the generation prompt
// embeds it. The budgeter measures tokens on this same rendering.
func FormatChunk(sc retrieval.ScoredChunk) string {
	c := sc.Chunk

	var sb strings.Builder
	sb.WriteString("[Document: ")
	sb.WriteString(c.DocumentName())
	if c.Section != "" {
		sb.WriteString(" | Section: ")
		sb.WriteString(c.Section)
	}
	fmt.Fprintf(&sb, " | Pages %d-%d | Source: %s]\n", c.PageStart, c.PageEnd, strings.ToUpper(c.Source))
	sb.WriteString(c.Text)
	sb.WriteString("\n")
	return sb.String()
}

// buildUserPrompt assembles the generation request: refusal instruction,
// context excerpts, optional defined terms, then the question verbatim.
func buildUserPrompt(question string, chunks []retrieval.ScoredChunk, defs []definitions.Definition, refusal string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "If the context below does not fully answer the question, reply with exactly: %s\n\n", refusal)

	sb.WriteString("Context excerpts:\n\n")
	for _, chunk := range chunks {
		sb.WriteString(FormatChunk(chunk))
		sb.WriteString("\n")
	}

	if len(defs) > 0 {
		sb.WriteString("Defined terms:\n\n")
		for _, def := range defs {
			fmt.Fprintf(&sb, "%q: %s\n", def.Term, def.Text)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n", question)
	return sb.String()
}
