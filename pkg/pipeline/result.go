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

// Package pipeline composes normalization, retrieval, reranking, gating,
// budgeting and answer generation into one request-scoped query flow.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyQuestion rejects blank questions before any pipeline work.
var ErrEmptyQuestion = errors.New("question is empty")

// ErrInvalidOptions rejects malformed request options.
var ErrInvalidOptions = errors.New("invalid options")

// SourceNotFoundError rejects requests naming a source the corpus does
// not hold.
type SourceNotFoundError struct {
	Source string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("unknown source %q", e.Source)
}

// Request is one query to the pipeline.
type Request struct {
	Question   string   `json:"question"`
	Sources    []string `json:"sources,omitempty"`
	SearchMode string   `json:"searchMode,omitempty"`
	Debug      bool     `json:"debug,omitempty"`
}

// Citation points at one cited chunk.
type Citation struct {
	Document  string `json:"document"`
	Section   string `json:"section,omitempty"`
	PageStart int    `json:"pageStart"`
	PageEnd   int    `json:"pageEnd"`
	Source    string `json:"source"`
}

// QueryResult is the fully populated outcome of one request, produced on
// both answers and refusals.
type QueryResult struct {
	QueryID             string     `json:"queryID"`
	OriginalQuestion    string     `json:"originalQuestion"`
	NormalizedQuestion  string     `json:"normalizedQuestion"`
	Sources             []string   `json:"sources"`
	Answer              string     `json:"answer"`
	Refused             bool       `json:"refused"`
	RefusalReason       *string    `json:"refusalReason"`
	Citations           []Citation `json:"citations"`
	DefinitionsLinked   []string   `json:"definitionsLinked"`
	ChunksRetrieved     int        `json:"chunksRetrieved"`
	ChunksUsed          int        `json:"chunksUsed"`
	InputTokens         int        `json:"inputTokens"`
	OutputTokens        int        `json:"outputTokens"`
	LatencyMs           int64      `json:"latencyMs"`
	SearchMode          string     `json:"searchMode"`
	EffectiveSearchMode string     `json:"effectiveSearchMode"`
	ScoresAreReranked   bool       `json:"scoresAreReranked"`
	ValidationErrors    []string   `json:"validationErrors,omitempty"`
}
