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

package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// BleveLexicalIndex is a LexicalIndex over per-source bleve indexes built at
// ingest. Indexes are opened read-only and lazily, once per source.
type BleveLexicalIndex struct {
	root string

	mu      sync.Mutex
	indexes map[string]bleve.Index
	missing map[string]bool
}

// NewBleveLexicalIndex creates an adapter rooted at dir, which holds one
// bleve index directory per source (dir/<source>.bleve).
func NewBleveLexicalIndex(dir string) *BleveLexicalIndex {
	return &BleveLexicalIndex{
		root:    dir,
		indexes: make(map[string]bleve.Index),
		missing: make(map[string]bool),
	}
}

func (b *BleveLexicalIndex) indexPath(source string) string {
	return filepath.Join(b.root, source+".bleve")
}

func (b *BleveLexicalIndex) open(source string) (bleve.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[source]; ok {
		return idx, nil
	}
	if b.missing[source] {
		return nil, sourceError("lexical", source)
	}

	path := b.indexPath(source)
	if _, err := os.Stat(path); err != nil {
		b.missing[source] = true
		return nil, sourceError("lexical", source)
	}

	idx, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	if err != nil {
		b.missing[source] = true
		return nil, fmt.Errorf("failed to open lexical index for %q: %w", source, err)
	}
	b.indexes[source] = idx
	return idx, nil
}

// QueryLexical implements LexicalIndex.
func (b *BleveLexicalIndex) QueryLexical(ctx context.Context, source string, tokens []string, k int) ([]LexicalHit, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	idx, err := b.open(source)
	if err != nil {
		return nil, err
	}

	matchQuery := bleve.NewMatchQuery(strings.Join(tokens, " "))
	matchQuery.SetField("text")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = k

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed for %q: %w", source, err)
	}

	hits := make([]LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, LexicalHit{ChunkID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// HasSource implements LexicalIndex.
func (b *BleveLexicalIndex) HasSource(_ context.Context, source string) bool {
	_, err := b.open(source)
	return err == nil
}

// Close implements LexicalIndex.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for source, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing lexical index for %q: %w", source, err)
		}
	}
	b.indexes = make(map[string]bleve.Index)
	return firstErr
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)
