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

// Package definitions loads per-source defined-term maps and links them to
// questions and retrieved passages. Definitions are additive context only;
// they are never scored, gated, or used in place of retrieved chunks.
package definitions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Definition is one defined term from a source's definitions section.
type Definition struct {
	Term          string `json:"term"`
	Text          string `json:"text"`
	SourceChunkID string `json:"source_chunk_id"`
}

// Store resolves a source's defined terms, keyed by normalized term.
// Implementations cache immutably; a process restart picks up new terms.
type Store interface {
	Definitions(source string) map[string]Definition
}

// FileStore loads definitions from <root>/<source>/definitions.ndjson,
// one JSON object per line. Each source is read at most once.
type FileStore struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]map[string]Definition
}

// NewFileStore creates a store over the corpus root directory.
func NewFileStore(root string, logger *slog.Logger) *FileStore {
	return &FileStore{
		root:   root,
		logger: logger,
		cache:  make(map[string]map[string]Definition),
	}
}

// Definitions implements Store. A missing or unreadable definitions file
// yields an empty map; linking simply finds nothing for that source.
func (s *FileStore) Definitions(source string) map[string]Definition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if defs, ok := s.cache[source]; ok {
		return defs
	}

	defs, err := s.load(source)
	if err != nil {
		s.logger.Warn("Failed to load definitions for source", "source", source, "error", err)
		defs = map[string]Definition{}
	}
	s.cache[source] = defs
	return defs
}

func (s *FileStore) load(source string) (map[string]Definition, error) {
	path := filepath.Join(s.root, source, "definitions.ndjson")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Definition{}, nil
		}
		return nil, err
	}
	defer f.Close()

	defs := make(map[string]Definition)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var def Definition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if def.Term == "" {
			return nil, fmt.Errorf("%s line %d: empty term", path, line)
		}
		defs[NormalizeTerm(def.Term)] = def
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	s.logger.Debug("Loaded definitions", "source", source, "terms", len(defs))
	return defs, nil
}

// NormalizeTerm produces the case-insensitive lookup key for a term.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

var _ Store = (*FileStore)(nil)
