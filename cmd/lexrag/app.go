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

package main

import (
	"fmt"
	"log/slog"

	"github.com/kadirpekel/lexrag/pkg/answer"
	"github.com/kadirpekel/lexrag/pkg/audit"
	"github.com/kadirpekel/lexrag/pkg/budget"
	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/definitions"
	"github.com/kadirpekel/lexrag/pkg/embedders"
	"github.com/kadirpekel/lexrag/pkg/gate"
	"github.com/kadirpekel/lexrag/pkg/index"
	"github.com/kadirpekel/lexrag/pkg/llms"
	"github.com/kadirpekel/lexrag/pkg/logger"
	"github.com/kadirpekel/lexrag/pkg/observability"
	"github.com/kadirpekel/lexrag/pkg/pipeline"
	"github.com/kadirpekel/lexrag/pkg/rerank"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/store"
	"github.com/kadirpekel/lexrag/pkg/utils"
)

// app holds the assembled pipeline and the resources that need closing.
type app struct {
	logger       *slog.Logger
	chunks       *store.CorpusStore
	vector       index.VectorIndex
	lexical      index.LexicalIndex
	sink         *audit.Sink
	metrics      *observability.Metrics
	orchestrator *pipeline.Orchestrator

	llm       llms.LLMProvider
	rerankLLM llms.LLMProvider
}

// buildApp wires every component from config. The same assembly serves the
// HTTP server and the one-shot CLI query path.
func buildApp(cfg *config.Config) (*app, error) {
	log := logger.Get()

	tokenizer, err := utils.NewTokenCounter(cfg.Corpus.TokenizerModel)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	chunks, err := store.OpenCorpus(cfg.Corpus.Root, cfg.Corpus.Sources)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	if cfg.Corpus.RecountTokens {
		log.Info("Recounting chunk tokens", "encoding", tokenizer.Encoding())
		chunks.RecountTokens(tokenizer.Count)
	}

	vectorIdx, err := index.NewVectorIndex(&cfg.Vector)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	lexicalIdx, err := index.NewLexicalIndex(&cfg.Lexical)
	if err != nil {
		vectorIdx.Close()
		return nil, fmt.Errorf("lexical index: %w", err)
	}

	embedder, err := embedders.NewEmbedder(&cfg.Embedder)
	if err != nil {
		vectorIdx.Close()
		lexicalIdx.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llm, err := llms.NewProvider(&cfg.LLM)
	if err != nil {
		vectorIdx.Close()
		lexicalIdx.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	// A cheaper model may serve reranking; default to the answer model.
	rerankLLM := llm
	if cfg.RerankLLM != nil {
		rerankLLM, err = llms.NewProvider(cfg.RerankLLM)
		if err != nil {
			llm.Close()
			vectorIdx.Close()
			lexicalIdx.Close()
			return nil, fmt.Errorf("rerank llm: %w", err)
		}
	}

	sink, err := audit.NewSink(&cfg.Audit, log)
	if err != nil {
		llm.Close()
		if rerankLLM != llm {
			rerankLLM.Close()
		}
		vectorIdx.Close()
		lexicalIdx.Close()
		return nil, fmt.Errorf("audit: %w", err)
	}

	metrics := observability.New()
	metrics.RegisterAuditDrops(sink.DebugDrops)

	defsStore := definitions.NewFileStore(cfg.Corpus.Root, log)

	orchestrator := pipeline.New(pipeline.Deps{
		Retriever: retrieval.NewHybridRetriever(embedder, vectorIdx, lexicalIdx, chunks, &cfg.Retrieval, log),
		Reranker:  rerank.NewReranker(rerankLLM, &cfg.Rerank, log),
		Gate:      gate.NewConfidenceGate(&cfg.Gate),
		Linker:    definitions.NewLinker(defsStore),
		Budgeter:  budget.NewBudgeter(tokenizer, answer.FormatChunk, &cfg.Budget),
		Generator: answer.NewGenerator(llm),
		Sink:      sink,
		Tokenizer: tokenizer,
		Metrics:   metrics,
		Chunks:    chunks,
		Config:    cfg,
		Logger:    log,
	})

	return &app{
		logger:       log,
		chunks:       chunks,
		vector:       vectorIdx,
		lexical:      lexicalIdx,
		sink:         sink,
		metrics:      metrics,
		orchestrator: orchestrator,
		llm:          llm,
		rerankLLM:    rerankLLM,
	}, nil
}

// Close releases everything, flushing the audit queues last so records
// from in-flight work are not lost.
func (a *app) Close() {
	if a.llm != nil {
		a.llm.Close()
	}
	if a.rerankLLM != nil && a.rerankLLM != a.llm {
		a.rerankLLM.Close()
	}
	if a.vector != nil {
		if err := a.vector.Close(); err != nil {
			a.logger.Warn("Failed to close vector index", "error", err)
		}
	}
	if a.lexical != nil {
		if err := a.lexical.Close(); err != nil {
			a.logger.Warn("Failed to close lexical index", "error", err)
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("Failed to close audit sink", "error", err)
		}
	}
}
