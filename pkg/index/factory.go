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
	"fmt"

	"github.com/kadirpekel/lexrag/pkg/config"
)

// NewVectorIndex creates the vector backend selected by config.
func NewVectorIndex(cfg *config.VectorStoreConfig) (VectorIndex, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector store config cannot be nil")
	}
	switch cfg.Type {
	case "chromem":
		return NewChromemVectorIndex(cfg.PersistPath)
	case "qdrant":
		return NewQdrantVectorIndex(cfg.Host, cfg.Port, cfg.APIKey, cfg.EnableTLS)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
}

// NewLexicalIndex creates the BM25 backend from config.
func NewLexicalIndex(cfg *config.LexicalIndexConfig) (LexicalIndex, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lexical index config cannot be nil")
	}
	return NewBleveLexicalIndex(cfg.Path), nil
}
