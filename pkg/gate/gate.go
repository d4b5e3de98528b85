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

// Package gate implements the deterministic refusal decision made before
// any answer-generation call. Two tiers: one for reranked scores, one for
// raw retrieval scores.
package gate

import (
	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
)

// RefusalReason enumerates why the gate (or a downstream guard) refused.
type RefusalReason string

const (
	ReasonNoChunksRetrieved       RefusalReason = "no_chunks_retrieved"
	ReasonTopBelowThreshold       RefusalReason = "top_below_threshold"
	ReasonInsufficientChunks      RefusalReason = "insufficient_chunks"
	ReasonTopScoreTooLow          RefusalReason = "top_score_too_low"
	ReasonNoClearWinner           RefusalReason = "no_clear_winner"
	ReasonEmptyContextAfterBudget RefusalReason = "empty_context_after_budget"
)

// Decision records the gate outcome plus the inputs that produced it, for
// the debug audit record.
type Decision struct {
	Refuse    bool          `json:"refuse"`
	Reason    RefusalReason `json:"reason,omitempty"`
	TopScore  float64       `json:"top_score"`
	NextScore float64       `json:"next_score"`
	Tier      string        `json:"tier"`
}

// ConfidenceGate decides whether retrieved evidence is strong enough to
// justify an answer-generation call.
type ConfidenceGate struct {
	cfg *config.GateConfig
}

// NewConfidenceGate creates a gate with the given thresholds.
func NewConfidenceGate(cfg *config.GateConfig) *ConfidenceGate {
	return &ConfidenceGate{cfg: cfg}
}

// Evaluate applies the tier selected by scoresAreReranked. Chunks must be
// sorted by score descending; the gate never reorders them.
func (g *ConfidenceGate) Evaluate(chunks []retrieval.ScoredChunk, scoresAreReranked bool) Decision {
	if scoresAreReranked {
		return g.rerankTier(chunks)
	}
	return g.retrievalTier(chunks)
}

// rerankTier gates on integer LLM relevance scores.
func (g *ConfidenceGate) rerankTier(chunks []retrieval.ScoredChunk) Decision {
	d := Decision{Tier: "rerank"}
	if len(chunks) == 0 {
		d.Refuse = true
		d.Reason = ReasonNoChunksRetrieved
		return d
	}

	threshold := 2.0
	if g.cfg.RelevanceThreshold != nil {
		threshold = float64(*g.cfg.RelevanceThreshold)
	}
	d.TopScore = chunks[0].Score
	if len(chunks) > 1 {
		d.NextScore = chunks[1].Score
	}

	if d.TopScore < threshold {
		d.Refuse = true
		d.Reason = ReasonTopBelowThreshold
		return d
	}

	qualifying := 0
	for _, c := range chunks {
		if c.Score >= threshold {
			qualifying++
		}
	}
	if qualifying < g.cfg.MinChunksRequired {
		d.Refuse = true
		d.Reason = ReasonInsufficientChunks
		return d
	}
	return d
}

// retrievalTier gates on raw rrf scores using an absolute floor plus a
// top1/top2 dominance ratio. The floor is strict: a top score exactly at
// RetrievalMinScore refuses.
func (g *ConfidenceGate) retrievalTier(chunks []retrieval.ScoredChunk) Decision {
	d := Decision{Tier: "retrieval"}
	if len(chunks) == 0 {
		d.Refuse = true
		d.Reason = ReasonNoChunksRetrieved
		return d
	}

	top1 := chunks[0].Score
	top2 := 0.0
	if len(chunks) > 1 {
		top2 = chunks[1].Score
	}
	d.TopScore = top1
	d.NextScore = top2

	if top1 <= g.cfg.RetrievalMinScore {
		d.Refuse = true
		d.Reason = ReasonTopScoreTooLow
		return d
	}
	if top2 <= 0 {
		// Nothing to dominate; the absolute floor already passed.
		return d
	}
	if top1/top2 < g.cfg.RetrievalMinRatio {
		d.Refuse = true
		d.Reason = ReasonNoClearWinner
		return d
	}
	return d
}
