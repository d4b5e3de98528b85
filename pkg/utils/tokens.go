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

// Package utils provides shared utilities for lexrag.
package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens the way the ingestion pipeline does. The context
// budget is only correct when ingest-time and query-time counts agree, so
// every component that measures text goes through this interface.
type Tokenizer interface {
	Count(text string) int
	Encoding() string
}

// TokenCounter is a Tokenizer backed by a tiktoken encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTokenCounter creates a counter for a model name. Unknown models fall
// back to cl100k_base, matching what ingestion does.
func NewTokenCounter(model string) (*TokenCounter, error) {
	name := EncodingForModel(model)

	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	enc, ok := encodingCache[name]
	if !ok {
		var err error
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load encoding %q: %w", name, err)
		}
		encodingCache[name] = enc
	}

	return &TokenCounter{encoding: enc, name: name}, nil
}

// Count returns the exact token count for text.
// The underlying tiktoken encoding is safe for concurrent use.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// Encoding returns the tiktoken encoding name in use.
func (tc *TokenCounter) Encoding() string {
	return tc.name
}

// EncodingForModel maps model names to tiktoken encodings.
func EncodingForModel(model string) string {
	switch {
	case hasPrefix(model, "gpt-4o"), hasPrefix(model, "o1"), hasPrefix(model, "o3"):
		return "o200k_base"
	case hasPrefix(model, "gpt-4"), hasPrefix(model, "gpt-3.5"),
		hasPrefix(model, "text-embedding"):
		return "cl100k_base"
	case hasPrefix(model, "claude"):
		// Anthropic does not publish its tokenizer; cl100k_base is the
		// closest approximation and matches ingestion.
		return "cl100k_base"
	default:
		return "cl100k_base"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

var _ Tokenizer = (*TokenCounter)(nil)
