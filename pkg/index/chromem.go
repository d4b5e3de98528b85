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
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemVectorIndex is a VectorIndex over an embedded chromem-go database.
// One collection per source, loaded from the ingest-time persistence file.
// Vectors are pre-computed by the embedder; the embedding function is never
// supposed to fire at query time.
type ChromemVectorIndex struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	embeddingFunc chromem.EmbeddingFunc
}

// NewChromemVectorIndex opens the persisted database under persistPath.
// A missing file yields an empty database rather than an error; readiness
// checks surface the gap per source.
func NewChromemVectorIndex(persistPath string) (*ChromemVectorIndex, error) {
	var db *chromem.DB

	dbPath := filepath.Join(persistPath, "vectors.gob")
	if _, err := os.Stat(dbPath); err == nil {
		loaded, err := chromem.NewPersistentDB(dbPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to load vector database %s: %w", dbPath, err)
		}
		db = loaded
		slog.Info("Loaded vector database", "path", dbPath)
	} else {
		db = chromem.NewDB()
		slog.Warn("Vector database file not found, starting empty", "path", dbPath)
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
	}

	return &ChromemVectorIndex{
		db:            db,
		collections:   make(map[string]*chromem.Collection),
		embeddingFunc: identityEmbed,
	}, nil
}

func (c *ChromemVectorIndex) collection(source string) *chromem.Collection {
	c.mu.RLock()
	if col, ok := c.collections[source]; ok {
		c.mu.RUnlock()
		return col
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.collections[source]; ok {
		return col
	}
	col := c.db.GetCollection(source, c.embeddingFunc)
	if col != nil {
		c.collections[source] = col
	}
	return col
}

// QueryVector implements VectorIndex.
func (c *ChromemVectorIndex) QueryVector(ctx context.Context, source string, vector []float32, k int) ([]VectorHit, error) {
	col := c.collection(source)
	if col == nil {
		return nil, sourceError("vector", source)
	}

	// chromem rejects nResults larger than the collection size.
	if count := col.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed for %q: %w", source, err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, VectorHit{ChunkID: r.ID, Score: r.Similarity})
	}
	return hits, nil
}

// HasSource implements VectorIndex.
func (c *ChromemVectorIndex) HasSource(_ context.Context, source string) bool {
	col := c.collection(source)
	return col != nil && col.Count() > 0
}

// Close implements VectorIndex. The database is read-only at query time so
// there is nothing to flush.
func (c *ChromemVectorIndex) Close() error {
	return nil
}

var _ VectorIndex = (*ChromemVectorIndex)(nil)
