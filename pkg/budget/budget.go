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

// Package budget packs surviving chunks into the answer-generation token
// budget using the same tokenizer the corpus was counted with.
package budget

import (
	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/utils"
)

// FormatFunc renders a chunk exactly as the answer generator will embed it
// in the prompt, so measured tokens match what the LLM receives.
type FormatFunc func(retrieval.ScoredChunk) string

// Info summarizes one packing run for audit records.
type Info struct {
	KeptCount    int `json:"kept_count"`
	DroppedCount int `json:"dropped_count"`
	TotalTokens  int `json:"total_tokens"`
	TargetTokens int `json:"target_tokens"`

	// CandidateTokens is the cost of every candidate before packing; the
	// gap to TotalTokens is what budgeting cut.
	CandidateTokens int `json:"candidate_tokens"`
}

// Budgeter enforces the context token budget.
type Budgeter struct {
	tokenizer utils.Tokenizer
	format    FormatFunc
	cfg       *config.BudgetConfig
}

// NewBudgeter creates a budgeter. format must match the answer generator's
// chunk rendering.
func NewBudgeter(tokenizer utils.Tokenizer, format FormatFunc, cfg *config.BudgetConfig) *Budgeter {
	return &Budgeter{tokenizer: tokenizer, format: format, cfg: cfg}
}

// Reserved returns the token reservation taken off the top of the budget
// before chunks are packed.
func (b *Budgeter) Reserved(questionTokens int) int {
	return b.cfg.SystemPromptTokens + b.cfg.QATemplateTokens + b.cfg.AnswerBufferTokens + questionTokens
}

// Enforce sorts chunks deterministically and greedy-packs them into the
// available budget. A chunk that does not fit is skipped, not a stopping
// point: a later, smaller chunk may still fit. Returned chunks preserve
// the packing order.
//
// An empty result means every surviving chunk individually exceeded the
// budget; callers must treat that as a refusal.
func (b *Budgeter) Enforce(chunks []retrieval.ScoredChunk, questionTokens int) ([]retrieval.ScoredChunk, Info) {
	available := b.cfg.MaxContextTokens - b.Reserved(questionTokens)

	info := Info{TargetTokens: available}
	if available <= 0 {
		info.DroppedCount = len(chunks)
		return nil, info
	}

	sorted := make([]retrieval.ScoredChunk, len(chunks))
	copy(sorted, chunks)
	retrieval.SortScoredChunks(sorted)

	kept := make([]retrieval.ScoredChunk, 0, len(sorted))
	total := 0
	for _, chunk := range sorted {
		cost := b.tokenizer.Count(b.format(chunk))
		info.CandidateTokens += cost
		if total+cost > available {
			info.DroppedCount++
			continue
		}
		kept = append(kept, chunk)
		total += cost
	}

	info.KeptCount = len(kept)
	info.TotalTokens = total
	return kept, info
}
