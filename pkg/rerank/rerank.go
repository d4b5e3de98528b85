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

// Package rerank scores retrieval candidates for question relevance with
// an LLM, using a bounded worker pool and graceful fallback to retrieval
// scores when too many calls fail.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/llms"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
)

const scoreOnlySystemPrompt = `You rate how relevant a document passage is to a question.
Respond with a single integer and nothing else:
3 - directly answers the question
2 - contains substantial relevant information
1 - mentions the topic but does not help answer
0 - unrelated`

const explainedSystemPrompt = `You rate how relevant a document passage is to a question.
Respond with a single integer (3 directly answers, 2 substantially relevant,
1 topical but unhelpful, 0 unrelated), then one short line explaining why.`

// ChunkScore is the per-candidate scoring outcome, kept for debug audit.
type ChunkScore struct {
	ChunkID     string `json:"chunk_id"`
	Score       int    `json:"score"`
	Explanation string `json:"explanation,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
}

// Result is the outcome of reranking one request's candidates.
type Result struct {
	// Chunks is the filtered, deterministically sorted survivor set. When
	// fallback triggered these carry the original rrf scores instead.
	Chunks []retrieval.ScoredChunk

	// ScoresAreReranked is false when fallback discarded the LLM scores.
	ScoresAreReranked bool

	// Details records every candidate's scoring attempt.
	Details []ChunkScore
}

// Reranker scores candidates 0-3 with an LLM.
type Reranker struct {
	llm    llms.LLMProvider
	cfg    *config.RerankConfig
	logger *slog.Logger
}

// NewReranker creates a reranker over the given provider.
func NewReranker(llm llms.LLMProvider, cfg *config.RerankConfig, logger *slog.Logger) *Reranker {
	return &Reranker{llm: llm, cfg: cfg, logger: logger}
}

// Rerank scores every candidate concurrently, bounded by the configured
// worker count, each call under its own timeout. Per-call failures score 0
// and set the failed flag; when strictly more than half of the candidates
// fail, all LLM scores are discarded and the candidates are returned with
// their rrf scores instead.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []retrieval.RetrievalCandidate) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{Chunks: nil, ScoresAreReranked: true}, nil
	}

	details := make([]ChunkScore, len(candidates))
	timeout := time.Duration(r.cfg.TimeoutMS) * time.Millisecond

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range candidates {
		i := i
		g.Go(func() error {
			details[i] = r.scoreOne(gctx, question, &candidates[i], timeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for i := range details {
		if details[i].Failed {
			failed++
		}
	}

	// Fallback requires strictly more than half of the candidates failing.
	if failed*2 > len(candidates) {
		r.logger.Warn("Rerank fallback triggered, using retrieval scores",
			"failed", failed, "candidates", len(candidates))
		chunks := make([]retrieval.ScoredChunk, len(candidates))
		for i, c := range candidates {
			chunks[i] = c.Scored()
		}
		return &Result{Chunks: chunks, ScoresAreReranked: false, Details: details}, nil
	}

	minScore := 2
	if r.cfg.MinScore != nil {
		minScore = *r.cfg.MinScore
	}

	kept := make([]retrieval.ScoredChunk, 0, len(candidates))
	for i, c := range candidates {
		if details[i].Score < minScore {
			continue
		}
		kept = append(kept, retrieval.ScoredChunk{
			Chunk: c.Chunk,
			Score: float64(details[i].Score),
			Kind:  retrieval.ScoreKindRerank,
		})
	}
	retrieval.SortScoredChunks(kept)
	if len(kept) > r.cfg.MaxKept {
		kept = kept[:r.cfg.MaxKept]
	}

	return &Result{Chunks: kept, ScoresAreReranked: true, Details: details}, nil
}

// scoreOne issues one scoring call. All failure modes (timeout, transport,
// unparseable output) collapse to score 0 with the failed flag set; the
// chunk is not dropped here.
func (r *Reranker) scoreOne(ctx context.Context, question string, candidate *retrieval.RetrievalCandidate, timeout time.Duration) ChunkScore {
	out := ChunkScore{ChunkID: candidate.ChunkID}

	text := candidate.Chunk.Text
	if len(text) > r.cfg.MaxChars {
		cut := r.cfg.MaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	system := scoreOnlySystemPrompt
	maxTokens := 5
	if r.cfg.IncludeExplanations {
		system = explainedSystemPrompt
		maxTokens = 60
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	completion, err := r.llm.Complete(callCtx, llms.CompletionRequest{
		System:      system,
		User:        fmt.Sprintf("Question: %s\n\nPassage:\n%s", question, text),
		Temperature: 0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		r.logger.Debug("Rerank call failed", "chunk_id", candidate.ChunkID, "error", err)
		out.Failed = true
		return out
	}

	score, explanation, ok := parseScore(completion.Text)
	if !ok {
		r.logger.Debug("Rerank response unparseable",
			"chunk_id", candidate.ChunkID, "response", completion.Text)
		out.Failed = true
		return out
	}

	out.Score = score
	if r.cfg.IncludeExplanations {
		out.Explanation = explanation
	}
	return out
}

// parseScore extracts the first integer from a response and requires it to
// be in [0,3]. The remainder of the first line after the integer is the
// explanation, if any.
func parseScore(response string) (int, string, bool) {
	trimmed := strings.TrimSpace(response)
	start := -1
	for i, r := range trimmed {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, "", false
	}
	end := start
	for end < len(trimmed) && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	if end-start > 1 {
		// Multi-digit integers are out of range by construction.
		return 0, "", false
	}
	score := int(trimmed[start] - '0')
	if score > 3 {
		return 0, "", false
	}

	rest := strings.TrimSpace(strings.Trim(trimmed[end:], " -:."))
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = strings.TrimSpace(rest[:idx])
	}
	return score, rest, true
}
