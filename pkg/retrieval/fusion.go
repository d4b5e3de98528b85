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
	"sort"

	"github.com/kadirpekel/lexrag/pkg/index"
)

// rankedChunk accumulates per-index ranks for one chunk during fusion.
type rankedChunk struct {
	chunkID     string
	vectorRank  int
	lexicalRank int
}

// fuseRRF combines vector and lexical result lists for one source using
// Reciprocal Rank Fusion: score(c) = sum over indexes of 1/(rrfK + rank).
// A chunk missing from an index contributes nothing for that index.
//
// Ordering is fully deterministic: rrf score descending, then lower vector
// rank, then lower lexical rank, then chunkID.
func fuseRRF(vectorHits []index.VectorHit, lexicalHits []index.LexicalHit, rrfK int) []RetrievalCandidate {
	byID := make(map[string]*rankedChunk, len(vectorHits)+len(lexicalHits))
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))

	add := func(chunkID string) *rankedChunk {
		if rc, ok := byID[chunkID]; ok {
			return rc
		}
		rc := &rankedChunk{chunkID: chunkID, vectorRank: RankAbsent, lexicalRank: RankAbsent}
		byID[chunkID] = rc
		order = append(order, chunkID)
		return rc
	}

	for i, hit := range vectorHits {
		add(hit.ChunkID).vectorRank = i + 1
	}
	for i, hit := range lexicalHits {
		rc := add(hit.ChunkID)
		if rc.lexicalRank == RankAbsent {
			rc.lexicalRank = i + 1
		}
	}

	candidates := make([]RetrievalCandidate, 0, len(order))
	for _, chunkID := range order {
		rc := byID[chunkID]
		score := 0.0
		if rc.vectorRank != RankAbsent {
			score += 1.0 / float64(rrfK+rc.vectorRank)
		}
		if rc.lexicalRank != RankAbsent {
			score += 1.0 / float64(rrfK+rc.lexicalRank)
		}
		candidates = append(candidates, RetrievalCandidate{
			ChunkID:     chunkID,
			VectorRank:  rc.vectorRank,
			LexicalRank: rc.lexicalRank,
			RRFScore:    score,
		})
	}

	sortCandidates(candidates)
	return candidates
}

// sortCandidates applies the deterministic candidate ordering.
func sortCandidates(candidates []RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.VectorRank != b.VectorRank {
			return a.VectorRank < b.VectorRank
		}
		if a.LexicalRank != b.LexicalRank {
			return a.LexicalRank < b.LexicalRank
		}
		return a.ChunkID < b.ChunkID
	})
}
