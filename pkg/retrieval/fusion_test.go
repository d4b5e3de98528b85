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

package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/lexrag/pkg/index"
	"github.com/kadirpekel/lexrag/pkg/store"
)

const rrfK = 60

func vhits(ids ...string) []index.VectorHit {
	out := make([]index.VectorHit, len(ids))
	for i, id := range ids {
		out[i] = index.VectorHit{ChunkID: id, Score: 1.0 - float32(i)*0.1}
	}
	return out
}

func lhits(ids ...string) []index.LexicalHit {
	out := make([]index.LexicalHit, len(ids))
	for i, id := range ids {
		out[i] = index.LexicalHit{ChunkID: id, Score: 10.0 - float64(i)}
	}
	return out
}

func TestFuseRRFScores(t *testing.T) {
	// c1 is rank 1 in both lists, c2 only vector rank 2, c3 only lexical
	// rank 2.
	candidates := fuseRRF(vhits("c1", "c2"), lhits("c1", "c3"), rrfK)
	require.Len(t, candidates, 3)

	byID := make(map[string]RetrievalCandidate)
	for _, c := range candidates {
		byID[c.ChunkID] = c
	}

	assert.InDelta(t, 2.0/61.0, byID["c1"].RRFScore, 1e-12)
	assert.InDelta(t, 1.0/62.0, byID["c2"].RRFScore, 1e-12)
	assert.InDelta(t, 1.0/62.0, byID["c3"].RRFScore, 1e-12)

	assert.Equal(t, 1, byID["c1"].VectorRank)
	assert.Equal(t, 1, byID["c1"].LexicalRank)
	assert.Equal(t, RankAbsent, byID["c2"].LexicalRank)
	assert.Equal(t, RankAbsent, byID["c3"].VectorRank)

	// Both-list member outranks single-list members.
	assert.Equal(t, "c1", candidates[0].ChunkID)
}

func TestFuseRRFTieBreaks(t *testing.T) {
	// c2 and c3 tie on rrf score. c2 has the (better) vector rank, c3 only
	// a lexical rank of the same value, so the vector rank breaks the tie.
	candidates := fuseRRF(vhits("c1", "c2"), lhits("c1", "c3"), rrfK)
	require.Len(t, candidates, 3)
	assert.Equal(t, "c2", candidates[1].ChunkID)
	assert.Equal(t, "c3", candidates[2].ChunkID)
}

func TestFuseRRFChunkIDTieBreak(t *testing.T) {
	// Identical ranks in the same index tie all the way down to the ID.
	a := fuseRRF(vhits("b2"), nil, rrfK)
	b := fuseRRF(vhits("a1"), nil, rrfK)
	merged := append(a, b...)
	sortCandidates(merged)
	assert.Equal(t, "a1", merged[0].ChunkID)
	assert.Equal(t, "b2", merged[1].ChunkID)
}

// Fused output must not depend on which index's list is walked first.
func TestFuseRRFCommutative(t *testing.T) {
	v := vhits("c1", "c2", "c3")
	l := lhits("c3", "c4")

	first := fuseRRF(v, l, rrfK)

	// Same inputs, fresh slices, repeated runs.
	for i := 0; i < 5; i++ {
		again := fuseRRF(vhits("c1", "c2", "c3"), lhits("c3", "c4"), rrfK)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].ChunkID, again[j].ChunkID, "run %d position %d", i, j)
			assert.Equal(t, first[j].RRFScore, again[j].RRFScore)
		}
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, nil, rrfK))

	only := fuseRRF(vhits("c1"), nil, rrfK)
	require.Len(t, only, 1)
	assert.InDelta(t, 1.0/61.0, only[0].RRFScore, 1e-12)
}

func TestRankAbsentValue(t *testing.T) {
	// RankAbsent must be large enough that any real rank sorts before it.
	assert.Equal(t, math.MaxInt32, RankAbsent)
}

func TestSortScoredChunks(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: &store.Chunk{ID: "c", TokenCount: 50}, Score: 2},
		{Chunk: &store.Chunk{ID: "a", TokenCount: 100}, Score: 3},
		{Chunk: &store.Chunk{ID: "b", TokenCount: 20}, Score: 2},
		{Chunk: &store.Chunk{ID: "d", TokenCount: 50}, Score: 2},
	}
	SortScoredChunks(chunks)

	got := []string{chunks[0].Chunk.ID, chunks[1].Chunk.ID, chunks[2].Chunk.ID, chunks[3].Chunk.ID}
	// Score desc, then token count asc, then ID asc.
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
