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

package rerank

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/llms"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/store"
)

// scriptedLLM answers scoring calls by looking the passage text up in its
// script. Unscripted passages fail the call.
type scriptedLLM struct {
	script map[string]string
	err    error
}

func (s *scriptedLLM) Complete(_ context.Context, req llms.CompletionRequest) (*llms.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	for passage, response := range s.script {
		if strings.Contains(req.User, passage) {
			return &llms.Completion{Text: response, Model: "scripted"}, nil
		}
	}
	return nil, errors.New("unscripted passage")
}

func (s *scriptedLLM) ModelName() string { return "scripted" }
func (s *scriptedLLM) Close() error      { return nil }

func candidate(id, text string, tokens int, rrfScore float64) retrieval.RetrievalCandidate {
	return retrieval.RetrievalCandidate{
		ChunkID:  id,
		Chunk:    &store.Chunk{ID: id, Source: "cme", Text: text, TokenCount: tokens},
		RRFScore: rrfScore,
	}
}

func testRerankConfig() *config.RerankConfig {
	cfg := &config.RerankConfig{}
	cfg.SetDefaults()
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRerankScoresAndFilters(t *testing.T) {
	llm := &scriptedLLM{script: map[string]string{
		"passage one":   "3",
		"passage two":   "1",
		"passage three": "2",
	}}
	r := NewReranker(llm, testRerankConfig(), testLogger())

	candidates := []retrieval.RetrievalCandidate{
		candidate("c1", "passage one", 10, 0.03),
		candidate("c2", "passage two", 10, 0.02),
		candidate("c3", "passage three", 10, 0.01),
	}

	result, err := r.Rerank(context.Background(), "question", candidates)
	require.NoError(t, err)
	assert.True(t, result.ScoresAreReranked)

	// MinScore 2 drops c2.
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "c1", result.Chunks[0].Chunk.ID)
	assert.Equal(t, 3.0, result.Chunks[0].Score)
	assert.Equal(t, retrieval.ScoreKindRerank, result.Chunks[0].Kind)
	assert.Equal(t, "c3", result.Chunks[1].Chunk.ID)

	require.Len(t, result.Details, 3)
	for _, d := range result.Details {
		assert.False(t, d.Failed, "chunk %s", d.ChunkID)
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := NewReranker(&scriptedLLM{}, testRerankConfig(), testLogger())
	result, err := r.Rerank(context.Background(), "question", nil)
	require.NoError(t, err)
	assert.True(t, result.ScoresAreReranked)
	assert.Empty(t, result.Chunks)
}

func TestRerankFallbackWhenMajorityFails(t *testing.T) {
	// Two of three calls fail: 2*2 > 3 triggers fallback.
	llm := &scriptedLLM{script: map[string]string{"passage one": "3"}}
	r := NewReranker(llm, testRerankConfig(), testLogger())

	candidates := []retrieval.RetrievalCandidate{
		candidate("c1", "passage one", 10, 0.03),
		candidate("c2", "unscripted two", 10, 0.02),
		candidate("c3", "unscripted three", 10, 0.01),
	}

	result, err := r.Rerank(context.Background(), "question", candidates)
	require.NoError(t, err)
	assert.False(t, result.ScoresAreReranked)

	// Fallback keeps everything with rrf scores, original order.
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, retrieval.ScoreKindRRF, result.Chunks[0].Kind)
	assert.Equal(t, 0.03, result.Chunks[0].Score)
}

func TestRerankNoFallbackAtExactlyHalf(t *testing.T) {
	// Two of four fail: 2*2 == 4 is not strictly more than half, so the
	// scored half proceeds.
	llm := &scriptedLLM{script: map[string]string{
		"passage one": "3",
		"passage two": "2",
	}}
	r := NewReranker(llm, testRerankConfig(), testLogger())

	candidates := []retrieval.RetrievalCandidate{
		candidate("c1", "passage one", 10, 0.04),
		candidate("c2", "passage two", 10, 0.03),
		candidate("c3", "unscripted three", 10, 0.02),
		candidate("c4", "unscripted four", 10, 0.01),
	}

	result, err := r.Rerank(context.Background(), "question", candidates)
	require.NoError(t, err)
	assert.True(t, result.ScoresAreReranked)

	// The failed candidates scored 0 and fall below MinScore.
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "c1", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "c2", result.Chunks[1].Chunk.ID)

	failed := 0
	for _, d := range result.Details {
		if d.Failed {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}

func TestRerankMinScoreZeroKeepsEverything(t *testing.T) {
	cfg := testRerankConfig()
	zero := 0
	cfg.MinScore = &zero

	llm := &scriptedLLM{script: map[string]string{
		"passage one": "2",
		"passage two": "0",
	}}
	r := NewReranker(llm, cfg, testLogger())

	candidates := []retrieval.RetrievalCandidate{
		candidate("c1", "passage one", 10, 0.02),
		candidate("c2", "passage two", 10, 0.01),
	}

	result, err := r.Rerank(context.Background(), "question", candidates)
	require.NoError(t, err)
	assert.True(t, result.ScoresAreReranked)
	// min_score 0 is a real setting: even unrelated chunks survive.
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, 0.0, result.Chunks[1].Score)
}

func TestRerankMaxKeptCap(t *testing.T) {
	cfg := testRerankConfig()
	cfg.MaxKept = 2

	script := map[string]string{}
	var candidates []retrieval.RetrievalCandidate
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		text := "passage " + id
		script[text] = "3"
		candidates = append(candidates, candidate(id, text, 10, 0.01))
	}

	r := NewReranker(&scriptedLLM{script: script}, cfg, testLogger())
	result, err := r.Rerank(context.Background(), "question", candidates)
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 2)
}

func TestRerankDeterministicOrderOnTies(t *testing.T) {
	llm := &scriptedLLM{script: map[string]string{
		"passage one": "3",
		"passage two": "3",
	}}
	r := NewReranker(llm, testRerankConfig(), testLogger())

	candidates := []retrieval.RetrievalCandidate{
		candidate("c2", "passage two", 50, 0.02),
		candidate("c1", "passage one", 10, 0.01),
	}

	result, err := r.Rerank(context.Background(), "question", candidates)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	// Equal scores: the smaller chunk wins.
	assert.Equal(t, "c1", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "c2", result.Chunks[1].Chunk.ID)
}

func TestRerankTruncatesLongChunks(t *testing.T) {
	cfg := testRerankConfig()
	cfg.MaxChars = 20

	var prompted string
	llm := &promptCapturingLLM{response: "3", captured: &prompted}
	r := NewReranker(llm, cfg, testLogger())

	// Multi-byte runes straddling the cut must not be split.
	long := strings.Repeat("é", 30)
	_, err := r.Rerank(context.Background(), "q", []retrieval.RetrievalCandidate{
		candidate("c1", long, 10, 0.01),
	})
	require.NoError(t, err)
	require.NotEmpty(t, prompted)

	idx := strings.Index(prompted, "Passage:\n")
	require.GreaterOrEqual(t, idx, 0)
	passage := prompted[idx+len("Passage:\n"):]
	assert.LessOrEqual(t, len(passage), 20)
	assert.True(t, strings.HasPrefix(passage, "é"))
	// No broken rune at the end.
	assert.Equal(t, passage, strings.ToValidUTF8(passage, ""))
}

type promptCapturingLLM struct {
	response string
	captured *string
}

func (p *promptCapturingLLM) Complete(_ context.Context, req llms.CompletionRequest) (*llms.Completion, error) {
	*p.captured = req.User
	return &llms.Completion{Text: p.response, Model: "capture"}, nil
}

func (p *promptCapturingLLM) ModelName() string { return "capture" }
func (p *promptCapturingLLM) Close() error      { return nil }

func TestParseScore(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		score       int
		explanation string
		ok          bool
	}{
		{name: "bare digit", response: "3", score: 3, ok: true},
		{name: "digit with whitespace", response: "  2 \n", score: 2, ok: true},
		{name: "digit with explanation", response: "2 - covers the fee schedule", score: 2, explanation: "covers the fee schedule", ok: true},
		{name: "prose before digit", response: "Score: 1", score: 1, explanation: "", ok: true},
		{name: "zero", response: "0", score: 0, ok: true},
		{name: "out of range", response: "7", ok: false},
		{name: "multi digit", response: "10", ok: false},
		{name: "no digit", response: "highly relevant", ok: false},
		{name: "empty", response: "", ok: false},
		{name: "explanation stops at newline", response: "3: on point\nsecond line", score: 3, explanation: "on point", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, explanation, ok := parseScore(tt.response)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.score, score)
				assert.Equal(t, tt.explanation, explanation)
			}
		})
	}
}
