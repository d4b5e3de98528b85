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

package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/store"
)

// wordTokenizer counts whitespace-separated words, which keeps the
// arithmetic in these tests readable.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int { return len(strings.Fields(text)) }
func (wordTokenizer) Encoding() string      { return "words" }

// identityFormat renders the chunk text unchanged so a chunk's cost equals
// its word count.
func identityFormat(sc retrieval.ScoredChunk) string { return sc.Chunk.Text }

func budgetConfig(maxContext int) *config.BudgetConfig {
	return &config.BudgetConfig{
		MaxContextTokens:   maxContext,
		SystemPromptTokens: 10,
		QATemplateTokens:   5,
		AnswerBufferTokens: 15,
	}
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}

func chunk(id string, score float64, wordCount int) retrieval.ScoredChunk {
	return retrieval.ScoredChunk{
		Chunk: &store.Chunk{ID: id, Text: words(wordCount), TokenCount: wordCount},
		Score: score,
	}
}

func TestReserved(t *testing.T) {
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))
	assert.Equal(t, 10+5+15+7, b.Reserved(7))
}

func TestEnforcePacksGreedily(t *testing.T) {
	// 100 total - (10+5+15+10 question) = 60 available.
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	kept, info := b.Enforce([]retrieval.ScoredChunk{
		chunk("c1", 3, 30),
		chunk("c2", 2, 25),
		chunk("c3", 1, 20),
	}, 10)

	// c1 (30) + c2 (25) = 55 fit; c3 would push to 75.
	require.Len(t, kept, 2)
	assert.Equal(t, "c1", kept[0].Chunk.ID)
	assert.Equal(t, "c2", kept[1].Chunk.ID)

	assert.Equal(t, 2, info.KeptCount)
	assert.Equal(t, 1, info.DroppedCount)
	assert.Equal(t, 55, info.TotalTokens)
	assert.Equal(t, 60, info.TargetTokens)
	// Pre-pack cost of all three candidates; the gap to TotalTokens is
	// what budgeting cut.
	assert.Equal(t, 75, info.CandidateTokens)
}

func TestEnforceRecordsCandidateTokensWhenNothingDropped(t *testing.T) {
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	kept, info := b.Enforce([]retrieval.ScoredChunk{
		chunk("c1", 3, 20),
		chunk("c2", 2, 10),
	}, 10)

	require.Len(t, kept, 2)
	assert.Equal(t, 0, info.DroppedCount)
	assert.Equal(t, 30, info.TotalTokens)
	assert.Equal(t, 30, info.CandidateTokens)
}

func TestEnforceSkipsAndContinues(t *testing.T) {
	// A chunk that does not fit is skipped, not a stopping point: a later,
	// smaller chunk may still fit.
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	kept, info := b.Enforce([]retrieval.ScoredChunk{
		chunk("c1", 3, 50),
		chunk("c2", 2, 40), // 50+40 > 60, skipped
		chunk("c3", 1, 10), // still fits: 50+10 = 60
	}, 10)

	require.Len(t, kept, 2)
	assert.Equal(t, "c1", kept[0].Chunk.ID)
	assert.Equal(t, "c3", kept[1].Chunk.ID)
	assert.Equal(t, 1, info.DroppedCount)
	assert.Equal(t, 60, info.TotalTokens)
}

func TestEnforceAllTooLarge(t *testing.T) {
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	kept, info := b.Enforce([]retrieval.ScoredChunk{
		chunk("c1", 3, 200),
		chunk("c2", 2, 300),
	}, 10)

	assert.Empty(t, kept)
	assert.Equal(t, 0, info.KeptCount)
	assert.Equal(t, 2, info.DroppedCount)
}

func TestEnforceNoBudgetLeft(t *testing.T) {
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	// Question alone eats past the window.
	kept, info := b.Enforce([]retrieval.ScoredChunk{chunk("c1", 3, 1)}, 500)
	assert.Empty(t, kept)
	assert.Equal(t, 1, info.DroppedCount)
	assert.LessOrEqual(t, info.TargetTokens, 0)
}

func TestEnforceSortsBeforePacking(t *testing.T) {
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	// Arrival order is worst-first; packing must favor the higher score.
	kept, _ := b.Enforce([]retrieval.ScoredChunk{
		chunk("low", 1, 40),
		chunk("high", 3, 40),
	}, 10)

	require.Len(t, kept, 1)
	assert.Equal(t, "high", kept[0].Chunk.ID)
}

func TestEnforceDoesNotMutateInput(t *testing.T) {
	b := NewBudgeter(wordTokenizer{}, identityFormat, budgetConfig(100))

	in := []retrieval.ScoredChunk{
		chunk("low", 1, 5),
		chunk("high", 3, 5),
	}
	_, _ = b.Enforce(in, 10)

	assert.Equal(t, "low", in[0].Chunk.ID)
	assert.Equal(t, "high", in[1].Chunk.ID)
}
