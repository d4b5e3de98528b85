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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/embedders"
	"github.com/kadirpekel/lexrag/pkg/index"
	"github.com/kadirpekel/lexrag/pkg/store"
)

// ErrRetrievalUnavailable reports that every index failed for every
// requested source. Unlike a single-index failure it is fatal to the
// request.
var ErrRetrievalUnavailable = errors.New("no index available for any requested source")

// HybridRetriever runs vector and lexical searches per source, fuses the
// rankings with RRF, and returns a deduplicated, capped candidate pool.
type HybridRetriever struct {
	embedder embedders.Embedder
	vector   index.VectorIndex
	lexical  index.LexicalIndex
	chunks   store.ChunkStore
	cfg      *config.RetrievalConfig
	logger   *slog.Logger
}

// NewHybridRetriever creates a retriever over the given indexes and store.
func NewHybridRetriever(
	embedder embedders.Embedder,
	vector index.VectorIndex,
	lexical index.LexicalIndex,
	chunks store.ChunkStore,
	cfg *config.RetrievalConfig,
	logger *slog.Logger,
) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		chunks:   chunks,
		cfg:      cfg,
		logger:   logger,
	}
}

// sourceResult holds one source's raw index outputs. The OK flags record
// which indexes actually served the source; a false flag degrades hybrid
// mode rather than failing the request.
type sourceResult struct {
	source      string
	vectorHits  []index.VectorHit
	lexicalHits []index.LexicalHit
	vectorOK    bool
	lexicalOK   bool
}

// SourceTrace exposes one source's raw index outputs for debug auditing.
type SourceTrace struct {
	Source      string
	VectorHits  []index.VectorHit
	LexicalHits []index.LexicalHit
}

// Trace carries the pre-fusion retrieval state of one request.
type Trace struct {
	Sources []SourceTrace
}

// Retrieve searches the requested sources in the requested mode and returns
// fused candidates sorted by rrf score, capped at MaxCandidates, together
// with the mode actually executed (narrower than requested when an index
// was unavailable) and a raw per-index trace for debug auditing.
func (r *HybridRetriever) Retrieve(ctx context.Context, normalizedQuery string, sources []string, mode config.SearchMode) ([]RetrievalCandidate, config.SearchMode, *Trace, error) {
	if len(sources) == 0 {
		return nil, mode, nil, fmt.Errorf("at least one source is required")
	}
	if !mode.Valid() {
		return nil, mode, nil, fmt.Errorf("invalid search mode %q", mode)
	}

	wantVector := mode == config.SearchModeVector || mode == config.SearchModeHybrid
	wantLexical := mode == config.SearchModeLexical || mode == config.SearchModeHybrid

	var queryVector []float32
	if wantVector {
		vectors, err := r.embedder.Embed(ctx, []string{normalizedQuery})
		if err != nil || len(vectors) != 1 {
			if mode == config.SearchModeVector {
				return nil, mode, nil, fmt.Errorf("%w: embedding failed: %v", ErrRetrievalUnavailable, err)
			}
			// Hybrid degrades to lexical when the embedder is down.
			r.logger.Warn("Embedder unavailable, degrading to lexical search", "error", err)
			wantVector = false
		} else {
			queryVector = vectors[0]
		}
	}

	tokens := QueryTokens(normalizedQuery)

	results := make([]sourceResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		results[i].source = source

		if wantVector {
			res := &results[i]
			src := source
			g.Go(func() error {
				hits, err := r.vector.QueryVector(gctx, src, queryVector, r.cfg.TopKVector)
				if err != nil {
					r.logger.Warn("Vector search unavailable for source", "source", src, "error", err)
					return nil
				}
				res.vectorHits = hits
				res.vectorOK = true
				return nil
			})
		}
		if wantLexical {
			res := &results[i]
			src := source
			g.Go(func() error {
				hits, err := r.lexical.QueryLexical(gctx, src, tokens, r.cfg.TopKLexical)
				if err != nil {
					r.logger.Warn("Lexical search unavailable for source", "source", src, "error", err)
					return nil
				}
				res.lexicalHits = hits
				res.lexicalOK = true
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, mode, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, mode, nil, err
	}

	effective := effectiveMode(mode, wantVector, wantLexical, results)
	if effective == "" {
		return nil, mode, nil, ErrRetrievalUnavailable
	}

	trace := &Trace{Sources: make([]SourceTrace, len(results))}
	var candidates []RetrievalCandidate
	for i := range results {
		trace.Sources[i] = SourceTrace{
			Source:      results[i].source,
			VectorHits:  results[i].vectorHits,
			LexicalHits: results[i].lexicalHits,
		}
		candidates = append(candidates, fuseRRF(results[i].vectorHits, results[i].lexicalHits, r.cfg.RRFK)...)
	}
	sortCandidates(candidates)
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}

	for i := range candidates {
		chunk, err := r.chunks.Get(ctx, candidates[i].ChunkID)
		if err != nil {
			return nil, effective, trace, fmt.Errorf("index returned chunk absent from store: %w", err)
		}
		candidates[i].Chunk = chunk
	}

	return candidates, effective, trace, nil
}

// effectiveMode derives the mode actually executed. Hybrid survives when
// at least one source was served by both indexes; otherwise it narrows to
// whichever side answered. Empty string means nothing answered at all.
func effectiveMode(requested config.SearchMode, wantVector, wantLexical bool, results []sourceResult) config.SearchMode {
	anyVector, anyLexical, anyBoth := false, false, false
	for i := range results {
		if results[i].vectorOK {
			anyVector = true
		}
		if results[i].lexicalOK {
			anyLexical = true
		}
		if results[i].vectorOK && results[i].lexicalOK {
			anyBoth = true
		}
	}

	switch requested {
	case config.SearchModeVector:
		if anyVector {
			return config.SearchModeVector
		}
	case config.SearchModeLexical:
		if anyLexical {
			return config.SearchModeLexical
		}
	case config.SearchModeHybrid:
		switch {
		case wantVector && wantLexical && anyBoth:
			return config.SearchModeHybrid
		case anyVector:
			return config.SearchModeVector
		case anyLexical:
			return config.SearchModeLexical
		}
	}
	return ""
}
