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

// LLMProviderConfig configures an LLM vendor.
//
// Example YAML:
//
//	llm:
//	  type: anthropic
//	  model: claude-3-5-haiku-20241022
//	  api_key: ${ANTHROPIC_API_KEY}
//	  timeout: 60
type LLMProviderConfig struct {
	// Type is the vendor: "openai" or "anthropic".
	Type string `yaml:"type"`

	// Model is the vendor model name.
	Model string `yaml:"model,omitempty"`

	// APIKey authenticates against the vendor API.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the vendor base URL (proxies, compatible endpoints).
	Host string `yaml:"host,omitempty"`

	// Timeout is the per-call timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries bounds transport-level retries.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "anthropic"
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// Validate checks the configuration for errors.
func (c *LLMProviderConfig) Validate() error {
	switch c.Type {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid LLM type %q (valid: openai, anthropic)", c.Type)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// EmbedderProviderConfig configures the embedding vendor.
type EmbedderProviderConfig struct {
	// Type is the vendor; only "openai" is supported.
	Type string `yaml:"type"`

	// Model is the embedding model name.
	Model string `yaml:"model,omitempty"`

	// APIKey authenticates against the vendor API.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the vendor base URL.
	Host string `yaml:"host,omitempty"`

	// Dimension is the embedding dimension; defaults per model.
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout is the per-call timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// BatchSize bounds inputs per embed call.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// SetDefaults applies default values.
func (c *EmbedderProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension == 0 {
		switch c.Model {
		case "text-embedding-3-large":
			c.Dimension = 3072
		default:
			c.Dimension = 1536
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

// Validate checks the configuration for errors.
func (c *EmbedderProviderConfig) Validate() error {
	if c.Type != "openai" {
		return fmt.Errorf("invalid embedder type %q (valid: openai)", c.Type)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension cannot be negative")
	}
	return nil
}

// VectorStoreConfig configures the vector index backend.
//
// Example YAML:
//
//	vector_store:
//	  type: chromem
//	  persist_path: ./data/vectors
type VectorStoreConfig struct {
	// Type is the vector store type: "chromem" or "qdrant".
	Type string `yaml:"type"`

	// PersistPath for chromem file persistence.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Host and Port for qdrant.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// APIKey for authenticated qdrant access.
	APIKey string `yaml:"api_key,omitempty"`

	// EnableTLS enables TLS connections to qdrant.
	EnableTLS bool `yaml:"enable_tls,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Type == "chromem" && c.PersistPath == "" {
		c.PersistPath = "./data/vectors"
	}
	if c.Type == "qdrant" && c.Port == 0 {
		c.Port = 6334
	}
}

// Validate checks the configuration for errors.
func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: chromem, qdrant)", c.Type)
	}
	if c.Type == "qdrant" && c.Host == "" {
		return fmt.Errorf("host is required for qdrant vector store")
	}
	return nil
}

// IsEmbedded returns true for embedded vector stores.
func (c *VectorStoreConfig) IsEmbedded() bool {
	return c.Type == "chromem"
}

// LexicalIndexConfig configures the BM25 index backend.
type LexicalIndexConfig struct {
	// Path is the directory holding one bleve index per source.
	Path string `yaml:"path"`
}

// SetDefaults applies default values.
func (c *LexicalIndexConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "./data/lexical"
	}
}

// Validate checks the configuration for errors.
func (c *LexicalIndexConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("lexical index path is required")
	}
	return nil
}
