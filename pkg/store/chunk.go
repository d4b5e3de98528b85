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

// Package store provides read-only access to the ingested chunk corpus.
//
// Chunks are produced by the ingestion pipeline and never mutated at query
// time. The store loads one newline-delimited JSON file per source and keeps
// the corpus in immutable in-memory maps shared by all requests.
package store

import (
	"context"
	"fmt"
)

// Chunk is a contiguous, section-aware fragment of a source document with
// enough metadata to produce a verifiable citation.
type Chunk struct {
	// ID is stable across re-ingestions and globally unique across sources.
	ID string `json:"chunk_id"`

	// Source is the tag naming the document provider (e.g. "cme").
	Source string `json:"source"`

	// DocumentPath is the document's path relative to the source root.
	DocumentPath string `json:"document_path"`

	// Section is the heading the chunk falls under, if known.
	Section string `json:"section,omitempty"`

	// PageStart and PageEnd are 1-indexed page numbers.
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`

	// Text is the verbatim chunk text.
	Text string `json:"text"`

	// TokenCount is measured at ingest with the same tokenizer the query
	// pipeline budgets with.
	TokenCount int `json:"token_count"`

	// IsDefinitions marks chunks extracted from a definitions section.
	IsDefinitions bool `json:"is_definitions,omitempty"`

	// RelativePath and WordCount are optional ingestion extras.
	RelativePath string `json:"relative_path,omitempty"`
	WordCount    int    `json:"word_count,omitempty"`
}

// DocumentName returns the citation-facing document identifier.
func (c *Chunk) DocumentName() string {
	if c.RelativePath != "" {
		return c.RelativePath
	}
	return c.DocumentPath
}

// ChunkStore resolves chunk IDs and enumerates documents per source.
// Implementations must be safe for concurrent readers.
type ChunkStore interface {
	// Get resolves a chunk ID to exactly one chunk.
	Get(ctx context.Context, chunkID string) (*Chunk, error)

	// ListDocuments returns the document paths ingested for a source.
	ListDocuments(ctx context.Context, source string) ([]string, error)

	// Sources returns the configured source tags in stable order.
	Sources() []string

	// DocumentCount returns the number of distinct documents for a source.
	DocumentCount(source string) int
}

// NotFoundError reports a chunk ID or source with no corpus entry.
type NotFoundError struct {
	Kind string // "chunk" or "source"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in corpus", e.Kind, e.Key)
}
