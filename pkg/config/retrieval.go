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

package config

import "fmt"

// SearchMode selects which indexes a retrieval runs against.
type SearchMode string

const (
	SearchModeVector  SearchMode = "vector"
	SearchModeLexical SearchMode = "lexical"
	SearchModeHybrid  SearchMode = "hybrid"
)

// Valid reports whether the mode is one of the three recognized modes.
func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeVector, SearchModeLexical, SearchModeHybrid:
		return true
	}
	return false
}

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	// TopKVector is the per-source, per-index depth for vector search.
	TopKVector int `yaml:"top_k_vector,omitempty"`

	// TopKLexical is the per-source, per-index depth for BM25 search.
	TopKLexical int `yaml:"top_k_lexical,omitempty"`

	// MaxCandidates caps the fused candidate pool across all sources.
	MaxCandidates int `yaml:"max_candidates,omitempty"`

	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int `yaml:"rrf_k,omitempty"`

	// SearchModeDefault is used when a request names no mode.
	SearchModeDefault SearchMode `yaml:"search_mode_default,omitempty"`
}

// SetDefaults applies default values.
func (c *RetrievalConfig) SetDefaults() {
	if c.TopKVector == 0 {
		c.TopKVector = 10
	}
	if c.TopKLexical == 0 {
		c.TopKLexical = 10
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = 12
	}
	if c.RRFK == 0 {
		c.RRFK = 60
	}
	if c.SearchModeDefault == "" {
		c.SearchModeDefault = SearchModeHybrid
	}
}

// Validate checks the configuration for errors.
func (c *RetrievalConfig) Validate() error {
	if c.TopKVector < 1 || c.TopKLexical < 1 {
		return fmt.Errorf("top_k values must be positive")
	}
	if c.MaxCandidates < 1 {
		return fmt.Errorf("max_candidates must be positive")
	}
	if c.RRFK < 1 {
		return fmt.Errorf("rrf_k must be positive")
	}
	if !c.SearchModeDefault.Valid() {
		return fmt.Errorf("invalid search_mode_default %q", c.SearchModeDefault)
	}
	return nil
}

// RerankConfig tunes the LLM reranker.
type RerankConfig struct {
	// Enabled toggles reranking; when off the gate sees raw RRF scores.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Workers bounds parallel scoring calls per request.
	Workers int `yaml:"workers,omitempty"`

	// TimeoutMS is the wall-clock timeout per scoring call.
	TimeoutMS int `yaml:"timeout_ms,omitempty"`

	// MaxChars truncates chunk text before prompting.
	MaxChars int `yaml:"max_chars,omitempty"`

	// MinScore filters chunks scoring below it after reranking. Pointer
	// so an explicit 0 (keep everything) survives defaulting.
	MinScore *int `yaml:"min_score,omitempty"`

	// MaxKept caps surviving chunks after filtering.
	MaxKept int `yaml:"max_kept,omitempty"`

	// IncludeExplanations asks the scorer for a one-line rationale
	// (recorded in debug audit only).
	IncludeExplanations bool `yaml:"include_explanations,omitempty"`
}

// SetDefaults applies default values.
func (c *RerankConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Workers == 0 {
		c.Workers = 5
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 30000
	}
	if c.MaxChars == 0 {
		c.MaxChars = 2000
	}
	if c.MinScore == nil {
		minScore := 2
		c.MinScore = &minScore
	}
	if c.MaxKept == 0 {
		c.MaxKept = 10
	}
}

// IsEnabled reports whether reranking is on.
func (c *RerankConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the configuration for errors.
func (c *RerankConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.TimeoutMS < 1 {
		return fmt.Errorf("timeout_ms must be positive")
	}
	if c.MinScore != nil && (*c.MinScore < 0 || *c.MinScore > 3) {
		return fmt.Errorf("min_score must be in [0,3]")
	}
	if c.MaxKept < 0 {
		return fmt.Errorf("max_kept cannot be negative")
	}
	return nil
}

// GateConfig tunes the confidence gate.
type GateConfig struct {
	// Enabled toggles gating entirely.
	Enabled *bool `yaml:"enabled,omitempty"`

	// RelevanceThreshold is the minimum reranked top score (tier 1).
	// Pointer so an explicit 0 survives defaulting.
	RelevanceThreshold *int `yaml:"relevance_threshold,omitempty"`

	// MinChunksRequired is the minimum count at or above the threshold.
	MinChunksRequired int `yaml:"min_chunks_required,omitempty"`

	// RetrievalMinScore is the raw-score floor (tier 2); strict bound.
	RetrievalMinScore float64 `yaml:"retrieval_min_score,omitempty"`

	// RetrievalMinRatio is the top1/top2 separation requirement (tier 2).
	RetrievalMinRatio float64 `yaml:"retrieval_min_ratio,omitempty"`
}

// SetDefaults applies default values.
func (c *GateConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.RelevanceThreshold == nil {
		threshold := 2
		c.RelevanceThreshold = &threshold
	}
	if c.MinChunksRequired == 0 {
		c.MinChunksRequired = 1
	}
	if c.RetrievalMinScore == 0 {
		c.RetrievalMinScore = 0.05
	}
	if c.RetrievalMinRatio == 0 {
		c.RetrievalMinRatio = 1.2
	}
}

// IsEnabled reports whether gating is on.
func (c *GateConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the configuration for errors.
func (c *GateConfig) Validate() error {
	if c.RelevanceThreshold != nil && (*c.RelevanceThreshold < 0 || *c.RelevanceThreshold > 3) {
		return fmt.Errorf("relevance_threshold must be in [0,3]")
	}
	if c.MinChunksRequired < 1 {
		return fmt.Errorf("min_chunks_required must be positive")
	}
	if c.RetrievalMinScore < 0 {
		return fmt.Errorf("retrieval_min_score cannot be negative")
	}
	if c.RetrievalMinRatio < 1 {
		return fmt.Errorf("retrieval_min_ratio must be >= 1")
	}
	return nil
}

// BudgetConfig tunes the context budget enforcer.
type BudgetConfig struct {
	// MaxContextTokens is the total context window the answer call may use.
	MaxContextTokens int `yaml:"max_context_tokens,omitempty"`

	// SystemPromptTokens reserves space for the immutable system prompt.
	SystemPromptTokens int `yaml:"system_prompt_tokens,omitempty"`

	// QATemplateTokens reserves space for question/answer scaffolding.
	QATemplateTokens int `yaml:"qa_template_tokens,omitempty"`

	// AnswerBufferTokens reserves space for the generated answer.
	AnswerBufferTokens int `yaml:"answer_buffer_tokens,omitempty"`
}

// SetDefaults applies default values.
func (c *BudgetConfig) SetDefaults() {
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 60000
	}
	if c.SystemPromptTokens == 0 {
		c.SystemPromptTokens = 500
	}
	if c.QATemplateTokens == 0 {
		c.QATemplateTokens = 200
	}
	if c.AnswerBufferTokens == 0 {
		c.AnswerBufferTokens = 2048
	}
}

// Validate checks the configuration for errors.
func (c *BudgetConfig) Validate() error {
	if c.MaxContextTokens < 1 {
		return fmt.Errorf("max_context_tokens must be positive")
	}
	reserved := c.SystemPromptTokens + c.QATemplateTokens + c.AnswerBufferTokens
	if reserved >= c.MaxContextTokens {
		return fmt.Errorf("reserved tokens (%d) must be below max_context_tokens (%d)",
			reserved, c.MaxContextTokens)
	}
	return nil
}
