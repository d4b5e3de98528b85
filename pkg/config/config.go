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

// Package config defines the closed configuration set for lexrag and loads
// it from YAML with environment-variable expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
//
// Example YAML:
//
//	corpus:
//	  root: ./data/corpus
//	  sources: [cme]
//	llm:
//	  type: anthropic
//	  model: claude-3-5-haiku-20241022
//	  api_key: ${ANTHROPIC_API_KEY}
//	embedder:
//	  type: openai
//	  model: text-embedding-3-small
//	  api_key: ${OPENAI_API_KEY}
//	server:
//	  port: 8080
//	  bearer_token: ${API_BEARER_TOKEN}
type Config struct {
	Corpus    CorpusConfig           `yaml:"corpus"`
	LLM       LLMProviderConfig      `yaml:"llm"`
	RerankLLM *LLMProviderConfig     `yaml:"rerank_llm,omitempty"`
	Embedder  EmbedderProviderConfig `yaml:"embedder"`
	Vector    VectorStoreConfig      `yaml:"vector_store"`
	Lexical   LexicalIndexConfig     `yaml:"lexical_index"`
	Retrieval RetrievalConfig        `yaml:"retrieval"`
	Rerank    RerankConfig           `yaml:"rerank"`
	Gate      GateConfig             `yaml:"gate"`
	Budget    BudgetConfig           `yaml:"budget"`
	Audit     AuditConfig            `yaml:"audit"`
	Server    ServerConfig           `yaml:"server"`
}

// CorpusConfig locates the ingested chunk corpus.
type CorpusConfig struct {
	// Root is the directory holding one subdirectory per source.
	Root string `yaml:"root"`

	// Sources are the configured source tags, in listing order.
	Sources []string `yaml:"sources"`

	// TokenizerModel names the model whose tokenizer measured ingest-time
	// token counts. Budgeting uses the same encoding.
	TokenizerModel string `yaml:"tokenizer_model,omitempty"`

	// RecountTokens recomputes chunk token counts at load time. Slower;
	// only needed when the ingest tokenizer drifted from TokenizerModel.
	RecountTokens bool `yaml:"recount_tokens,omitempty"`
}

// SetDefaults applies default values.
func (c *CorpusConfig) SetDefaults() {
	if c.Root == "" {
		c.Root = "./data/corpus"
	}
	if len(c.Sources) == 0 {
		c.Sources = []string{"cme"}
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = "gpt-4o"
	}
}

// Validate checks the configuration for errors.
func (c *CorpusConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("corpus root is required")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one corpus source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s == "" {
			return fmt.Errorf("corpus source tag cannot be empty")
		}
		if seen[s] {
			return fmt.Errorf("duplicate corpus source %q", s)
		}
		seen[s] = true
	}
	return nil
}

// Load reads, expands, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := expandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Corpus.SetDefaults()
	c.LLM.SetDefaults()
	if c.RerankLLM != nil {
		c.RerankLLM.SetDefaults()
	}
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Lexical.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Rerank.SetDefaults()
	c.Gate.SetDefaults()
	c.Budget.SetDefaults()
	c.Audit.SetDefaults()
	c.Server.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	type section struct {
		name string
		val  interface{ Validate() error }
	}
	sections := []section{
		{"corpus", &c.Corpus},
		{"llm", &c.LLM},
		{"embedder", &c.Embedder},
		{"vector_store", &c.Vector},
		{"lexical_index", &c.Lexical},
		{"retrieval", &c.Retrieval},
		{"rerank", &c.Rerank},
		{"gate", &c.Gate},
		{"budget", &c.Budget},
		{"audit", &c.Audit},
		{"server", &c.Server},
	}
	if c.RerankLLM != nil {
		sections = append(sections, section{"rerank_llm", c.RerankLLM})
	}
	for _, s := range sections {
		if err := s.val.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}
