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

// Package retrieval implements query normalization, hybrid vector+lexical
// search, and Reciprocal Rank Fusion over the chunk corpus.
package retrieval

import (
	"math"
	"sort"

	"github.com/kadirpekel/lexrag/pkg/store"
)

// ScoreKind tags which scoring regime produced a ScoredChunk's score.
// Within one request all scores carry the same kind; rrf and rerank
// scores never mix.
type ScoreKind string

const (
	ScoreKindRRF    ScoreKind = "rrf"
	ScoreKindRerank ScoreKind = "rerank"
)

// ScoredChunk is a chunk plus a relevance score from one scoring regime.
type ScoredChunk struct {
	Chunk *store.Chunk
	Score float64
	Kind  ScoreKind
}

// RankAbsent marks a chunk missing from one of the two indexes.
const RankAbsent = math.MaxInt32

// RetrievalCandidate is one fused retrieval result. Ranks are 1-indexed
// within the returning index's list; RankAbsent when the index did not
// return the chunk. Chunk is resolved from the store after fusion.
type RetrievalCandidate struct {
	ChunkID     string
	Chunk       *store.Chunk
	VectorRank  int
	LexicalRank int
	RRFScore    float64
}

// Scored converts a candidate to a ScoredChunk carrying its rrf score.
// Used when reranking is disabled or fell back.
func (c RetrievalCandidate) Scored() ScoredChunk {
	return ScoredChunk{Chunk: c.Chunk, Score: c.RRFScore, Kind: ScoreKindRRF}
}

// SortScoredChunks applies the deterministic survivor ordering used by
// the reranker and the budgeter: score descending, then smaller token
// count, then chunkID.
func SortScoredChunks(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.TokenCount != b.Chunk.TokenCount {
			return a.Chunk.TokenCount < b.Chunk.TokenCount
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}
