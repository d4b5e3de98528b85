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

// Package index provides read-only adapters over the vector and lexical
// indexes built at ingest time. The query pipeline treats both as external
// observers; nothing here mutates an index.
package index

import (
	"context"
	"errors"
	"fmt"
)

// VectorHit is one vector search result. Score is cosine similarity; the
// pipeline treats it only ordinally.
type VectorHit struct {
	ChunkID string
	Score   float32
}

// LexicalHit is one BM25 search result. Scores are unbounded positives.
type LexicalHit struct {
	ChunkID string
	Score   float64
}

// VectorIndex returns top-K chunk IDs by vector similarity for a source.
type VectorIndex interface {
	QueryVector(ctx context.Context, source string, vector []float32, k int) ([]VectorHit, error)

	// HasSource reports whether the index holds data for a source.
	// Used by readiness checks and hybrid-mode degradation.
	HasSource(ctx context.Context, source string) bool

	Close() error
}

// LexicalIndex returns top-K chunk IDs by BM25 score for a source.
type LexicalIndex interface {
	QueryLexical(ctx context.Context, source string, tokens []string, k int) ([]LexicalHit, error)

	// HasSource reports whether the index holds data for a source.
	HasSource(ctx context.Context, source string) bool

	Close() error
}

// ErrSourceUnavailable reports that an index has no data for a source.
// The retriever degrades hybrid mode on it rather than failing the request.
var ErrSourceUnavailable = errors.New("index has no data for source")

// sourceError wraps ErrSourceUnavailable with the source tag.
func sourceError(kind, source string) error {
	return fmt.Errorf("%s index: source %q: %w", kind, source, ErrSourceUnavailable)
}
