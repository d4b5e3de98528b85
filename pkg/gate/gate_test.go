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

package gate

import (
	"testing"

	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/store"
)

func scored(scores ...float64) []retrieval.ScoredChunk {
	out := make([]retrieval.ScoredChunk, len(scores))
	for i, s := range scores {
		out[i] = retrieval.ScoredChunk{
			Chunk: &store.Chunk{ID: "c", TokenCount: 10},
			Score: s,
		}
	}
	return out
}

func testGate() *ConfidenceGate {
	cfg := &config.GateConfig{}
	cfg.SetDefaults()
	return NewConfidenceGate(cfg)
}

func TestRerankTier(t *testing.T) {
	tests := []struct {
		name   string
		chunks []retrieval.ScoredChunk
		refuse bool
		reason RefusalReason
	}{
		{
			name:   "no chunks refuses",
			chunks: nil,
			refuse: true,
			reason: ReasonNoChunksRetrieved,
		},
		{
			name:   "top below threshold refuses",
			chunks: scored(1, 1, 1),
			refuse: true,
			reason: ReasonTopBelowThreshold,
		},
		{
			name:   "top exactly at threshold passes",
			chunks: scored(2),
			refuse: false,
		},
		{
			name:   "strong evidence passes",
			chunks: scored(3, 3, 2),
			refuse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testGate().Evaluate(tt.chunks, true)
			if d.Refuse != tt.refuse {
				t.Fatalf("Refuse = %v, want %v (decision %+v)", d.Refuse, tt.refuse, d)
			}
			if tt.refuse && d.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
			}
			if d.Tier != "rerank" {
				t.Errorf("Tier = %q, want rerank", d.Tier)
			}
		})
	}
}

func TestRerankTierMinChunksRequired(t *testing.T) {
	cfg := &config.GateConfig{MinChunksRequired: 2}
	cfg.SetDefaults()
	g := NewConfidenceGate(cfg)

	// Only one chunk clears the threshold.
	d := g.Evaluate(scored(3, 1, 0), true)
	if !d.Refuse || d.Reason != ReasonInsufficientChunks {
		t.Fatalf("expected insufficient_chunks, got %+v", d)
	}

	d = g.Evaluate(scored(3, 2, 1), true)
	if d.Refuse {
		t.Fatalf("expected pass with two qualifying chunks, got %+v", d)
	}
}

func TestRerankTierZeroThreshold(t *testing.T) {
	zero := 0
	cfg := &config.GateConfig{RelevanceThreshold: &zero}
	cfg.SetDefaults()
	g := NewConfidenceGate(cfg)

	// relevance_threshold 0 is configurable: even all-zero scores pass.
	d := g.Evaluate(scored(0, 0), true)
	if d.Refuse {
		t.Fatalf("expected pass with zero threshold, got %+v", d)
	}
}

func TestRetrievalTier(t *testing.T) {
	tests := []struct {
		name   string
		chunks []retrieval.ScoredChunk
		refuse bool
		reason RefusalReason
	}{
		{
			name:   "no chunks refuses",
			chunks: nil,
			refuse: true,
			reason: ReasonNoChunksRetrieved,
		},
		{
			name:   "top exactly at floor refuses, bound is strict",
			chunks: scored(0.05, 0.01),
			refuse: true,
			reason: ReasonTopScoreTooLow,
		},
		{
			name:   "top below floor refuses",
			chunks: scored(0.01),
			refuse: true,
			reason: ReasonTopScoreTooLow,
		},
		{
			name:   "no clear winner refuses",
			chunks: scored(0.10, 0.09),
			refuse: true,
			reason: ReasonNoClearWinner,
		},
		{
			name:   "dominant top passes",
			chunks: scored(0.12, 0.06),
			refuse: false,
		},
		{
			name:   "single chunk above floor passes",
			chunks: scored(0.10),
			refuse: false,
		},
		{
			name:   "ratio exactly at minimum passes",
			chunks: scored(0.375, 0.3125),
			refuse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testGate().Evaluate(tt.chunks, false)
			if d.Refuse != tt.refuse {
				t.Fatalf("Refuse = %v, want %v (decision %+v)", d.Refuse, tt.refuse, d)
			}
			if tt.refuse && d.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
			}
			if d.Tier != "retrieval" {
				t.Errorf("Tier = %q, want retrieval", d.Tier)
			}
		})
	}
}

func TestDecisionRecordsScores(t *testing.T) {
	d := testGate().Evaluate(scored(3, 2), true)
	if d.TopScore != 3 || d.NextScore != 2 {
		t.Errorf("scores not recorded: %+v", d)
	}
}
