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

package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// chunkFileName is the per-source corpus file written by ingestion.
const chunkFileName = "chunks.ndjson"

// maxChunkLine bounds a single NDJSON record. Chunks are ~500-800 words, so
// 1 MiB leaves generous headroom without letting a corrupt file OOM the scan.
const maxChunkLine = 1 << 20

// CorpusStore is a ChunkStore backed by per-source NDJSON files.
// The corpus is loaded once at construction and never mutated.
type CorpusStore struct {
	chunks    map[string]*Chunk
	sources   []string
	documents map[string][]string
}

// OpenCorpus loads chunk files for the given sources from root. Each source
// must have root/<source>/chunks.ndjson. Duplicate chunk IDs across any
// source are a corpus defect and fail the load.
func OpenCorpus(root string, sources []string) (*CorpusStore, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	s := &CorpusStore{
		chunks:    make(map[string]*Chunk),
		documents: make(map[string][]string),
	}

	for _, source := range sources {
		path := filepath.Join(root, source, chunkFileName)
		if err := s.loadSource(source, path); err != nil {
			return nil, fmt.Errorf("loading source %q: %w", source, err)
		}
		s.sources = append(s.sources, source)
	}
	sort.Strings(s.sources)

	return s, nil
}

func (s *CorpusStore) loadSource(source, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxChunkLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if chunk.ID == "" {
			return fmt.Errorf("line %d: chunk without chunk_id", line)
		}
		if _, dup := s.chunks[chunk.ID]; dup {
			return fmt.Errorf("line %d: duplicate chunk_id %q", line, chunk.ID)
		}
		chunk.Source = source

		s.chunks[chunk.ID] = &chunk
		if _, ok := seen[chunk.DocumentPath]; !ok {
			seen[chunk.DocumentPath] = struct{}{}
			s.documents[source] = append(s.documents[source], chunk.DocumentPath)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	sort.Strings(s.documents[source])
	return nil
}

// Get implements ChunkStore.
func (s *CorpusStore) Get(_ context.Context, chunkID string) (*Chunk, error) {
	chunk, ok := s.chunks[chunkID]
	if !ok {
		return nil, &NotFoundError{Kind: "chunk", Key: chunkID}
	}
	return chunk, nil
}

// ListDocuments implements ChunkStore.
func (s *CorpusStore) ListDocuments(_ context.Context, source string) ([]string, error) {
	docs, ok := s.documents[source]
	if !ok {
		return nil, &NotFoundError{Kind: "source", Key: source}
	}
	out := make([]string, len(docs))
	copy(out, docs)
	return out, nil
}

// Sources implements ChunkStore.
func (s *CorpusStore) Sources() []string {
	out := make([]string, len(s.sources))
	copy(out, s.sources)
	return out
}

// DocumentCount implements ChunkStore.
func (s *CorpusStore) DocumentCount(source string) int {
	return len(s.documents[source])
}

// RecountTokens remeasures every chunk's token count with the given
// counter. This is the slow path for corpora whose ingest tokenizer
// drifted from the one budgeting uses; call it before serving requests,
// the store is treated as immutable afterwards.
func (s *CorpusStore) RecountTokens(count func(string) int) {
	for _, chunk := range s.chunks {
		chunk.TokenCount = count(chunk.Text)
	}
}

// ChunkCount returns the total number of chunks loaded for a source.
func (s *CorpusStore) ChunkCount(source string) int {
	n := 0
	for _, c := range s.chunks {
		if c.Source == source {
			n++
		}
	}
	return n
}

var _ ChunkStore = (*CorpusStore)(nil)
