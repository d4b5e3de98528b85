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
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/lexrag/pkg/definitions"
	"github.com/kadirpekel/lexrag/pkg/llms"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
)

const answerMaxTokens = 2048

// Generation is the outcome of one answer-generation call.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Generator issues the single grounded generation call per request.
type Generator struct {
	llm llms.LLMProvider
}

// NewGenerator creates a generator over the given provider.
func NewGenerator(llm llms.LLMProvider) *Generator {
	return &Generator{llm: llm}
}

// Generate renders the prompt and calls the LLM once at temperature 0.
// refusal is the canonical refusal sentence for this request; the model is
// instructed to emit it verbatim when the context is insufficient.
func (g *Generator) Generate(ctx context.Context, question string, chunks []retrieval.ScoredChunk, defs []definitions.Definition, refusal string) (*Generation, error) {
	completion, err := g.llm.Complete(ctx, llms.CompletionRequest{
		System:      systemPrompt,
		User:        buildUserPrompt(question, chunks, defs, refusal),
		Temperature: 0,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	return &Generation{
		Text:         strings.TrimSpace(completion.Text),
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Model:        completion.Model,
	}, nil
}

// IsRefusal reports whether the generated text is the canonical refusal
// for this request, i.e. an Answer section containing only the refusal
// sentence (or the bare sentence itself).
func IsRefusal(text, refusal string) bool {
	stripped := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "## Answer"))
	return stripped == refusal || strings.TrimSpace(text) == refusal
}
