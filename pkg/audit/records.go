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

package audit

import (
	"github.com/kadirpekel/lexrag/pkg/budget"
	"github.com/kadirpekel/lexrag/pkg/gate"
	"github.com/kadirpekel/lexrag/pkg/rerank"
)

// ComplianceRecord is the always-on audit entry, one per request
// regardless of outcome.
type ComplianceRecord struct {
	Timestamp           string   `json:"timestamp"`
	QueryID             string   `json:"query_id"`
	Question            string   `json:"question"`
	NormalizedQuery     string   `json:"normalized_query"`
	Sources             []string `json:"sources"`
	SearchMode          string   `json:"search_mode"`
	EffectiveSearchMode string   `json:"effective_search_mode"`
	ChunksRetrieved     int      `json:"chunks_retrieved"`
	ChunksUsed          int      `json:"chunks_used"`
	DefinitionsLinked   []string `json:"definitions_linked"`
	TokensInput         int      `json:"tokens_input"`
	TokensOutput        int      `json:"tokens_output"`
	LatencyMs           int64    `json:"latency_ms"`
	Refused             bool     `json:"refused"`
	RefusalReason       *string  `json:"refusal_reason"`
	AnswerWordCount     int      `json:"answer_word_count"`
	CitationCount       int      `json:"citation_count"`
	ValidationErrors    []string `json:"validation_errors,omitempty"`
}

// RankedResult is one index hit in a debug record.
type RankedResult struct {
	ChunkID string  `json:"chunk_id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
}

// DebugRecord is the opt-in verbose entry carrying per-stage diagnostics.
type DebugRecord struct {
	Timestamp       string              `json:"timestamp"`
	QueryID         string              `json:"query_id"`
	VectorResults   []RankedResult      `json:"vector_results"`
	LexicalResults  []RankedResult      `json:"lexical_results"`
	FusedResults    []RankedResult      `json:"fused_results"`
	RerankScores    []rerank.ChunkScore `json:"rerank_scores,omitempty"`
	RerankFallback  bool                `json:"rerank_fallback"`
	Gate            *gate.Decision      `json:"gate,omitempty"`
	Budget          *budget.Info        `json:"budget,omitempty"`
	AnswerModel     string              `json:"answer_model,omitempty"`
	TotalDurationMs int64               `json:"total_duration_ms"`
}
