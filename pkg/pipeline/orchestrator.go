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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/lexrag/pkg/answer"
	"github.com/kadirpekel/lexrag/pkg/audit"
	"github.com/kadirpekel/lexrag/pkg/budget"
	"github.com/kadirpekel/lexrag/pkg/config"
	"github.com/kadirpekel/lexrag/pkg/definitions"
	"github.com/kadirpekel/lexrag/pkg/gate"
	"github.com/kadirpekel/lexrag/pkg/observability"
	"github.com/kadirpekel/lexrag/pkg/rerank"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/store"
	"github.com/kadirpekel/lexrag/pkg/utils"
)

// Orchestrator runs the query state machine: normalize, retrieve, rerank,
// gate, link definitions, budget, answer, validate, audit. Transitions are
// linear; no state is re-entered. A compliance audit record is written for
// every request that gets past normalization, including error outcomes.
type Orchestrator struct {
	retriever *retrieval.HybridRetriever
	reranker  *rerank.Reranker
	gate      *gate.ConfidenceGate
	linker    *definitions.Linker
	budgeter  *budget.Budgeter
	generator *answer.Generator
	sink      *audit.Sink
	tokenizer utils.Tokenizer
	metrics   *observability.Metrics
	chunks    store.ChunkStore
	cfg       *config.Config
	logger    *slog.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Retriever *retrieval.HybridRetriever
	Reranker  *rerank.Reranker
	Gate      *gate.ConfidenceGate
	Linker    *definitions.Linker
	Budgeter  *budget.Budgeter
	Generator *answer.Generator
	Sink      *audit.Sink
	Tokenizer utils.Tokenizer
	Metrics   *observability.Metrics
	Chunks    store.ChunkStore
	Config    *config.Config
	Logger    *slog.Logger
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		retriever: deps.Retriever,
		reranker:  deps.Reranker,
		gate:      deps.Gate,
		linker:    deps.Linker,
		budgeter:  deps.Budgeter,
		generator: deps.Generator,
		sink:      deps.Sink,
		tokenizer: deps.Tokenizer,
		metrics:   deps.Metrics,
		chunks:    deps.Chunks,
		cfg:       deps.Config,
		logger:    deps.Logger,
	}
}

// runState carries per-request bookkeeping across stages.
type runState struct {
	req     *Request
	result  *QueryResult
	started time.Time
	debug   *audit.DebugRecord
}

// Query executes one request end to end. Refusals are successful results,
// not errors; errors are reserved for input validation and infrastructure
// failures.
func (o *Orchestrator) Query(ctx context.Context, req *Request) (*QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	sources := req.Sources
	if len(sources) == 0 {
		sources = o.cfg.Corpus.Sources
	}
	for _, source := range sources {
		if !o.knownSource(source) {
			return nil, &SourceNotFoundError{Source: source}
		}
	}

	mode := config.SearchMode(req.SearchMode)
	if mode == "" {
		mode = o.cfg.Retrieval.SearchModeDefault
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: invalid search mode %q", ErrInvalidOptions, req.SearchMode)
	}

	st := &runState{
		req:     req,
		started: time.Now(),
		result: &QueryResult{
			QueryID:             uuid.NewString(),
			OriginalQuestion:    question,
			NormalizedQuestion:  retrieval.Normalize(question),
			Sources:             sources,
			Citations:           []Citation{},
			DefinitionsLinked:   []string{},
			SearchMode:          string(mode),
			EffectiveSearchMode: string(mode),
		},
	}
	if req.Debug {
		st.debug = &audit.DebugRecord{QueryID: st.result.QueryID}
	}

	result, err := o.run(ctx, st, mode)
	if err != nil {
		// NORMALIZE succeeded, so the compliance trail still gets a record.
		o.finish(st, "error")
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, st *runState, mode config.SearchMode) (*QueryResult, error) {
	res := st.result
	question := res.OriginalQuestion

	// RETRIEVE
	stageStart := time.Now()
	candidates, effective, trace, err := o.retriever.Retrieve(ctx, res.NormalizedQuestion, res.Sources, mode)
	o.metrics.ObserveStage("retrieve", time.Since(stageStart))
	if err != nil {
		return nil, err
	}
	res.EffectiveSearchMode = string(effective)
	res.ChunksRetrieved = len(candidates)
	o.traceRetrieval(st, trace, candidates)

	if len(candidates) == 0 {
		return o.refuse(st, gate.ReasonNoChunksRetrieved), nil
	}

	// RERANK
	var chunks []retrieval.ScoredChunk
	if o.cfg.Rerank.IsEnabled() {
		stageStart = time.Now()
		rr, err := o.reranker.Rerank(ctx, question, candidates)
		o.metrics.ObserveStage("rerank", time.Since(stageStart))
		if err != nil {
			return nil, err
		}
		chunks = rr.Chunks
		res.ScoresAreReranked = rr.ScoresAreReranked
		if !rr.ScoresAreReranked {
			o.metrics.RerankFallbacks.Inc()
		}
		if st.debug != nil {
			st.debug.RerankScores = rr.Details
			st.debug.RerankFallback = !rr.ScoresAreReranked
		}
	} else {
		chunks = make([]retrieval.ScoredChunk, len(candidates))
		for i, c := range candidates {
			chunks[i] = c.Scored()
		}
		res.ScoresAreReranked = false
	}

	// The deadline gate: never start gating or answering on a dead context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// GATE
	if o.cfg.Gate.IsEnabled() {
		decision := o.gate.Evaluate(chunks, res.ScoresAreReranked)
		if st.debug != nil {
			st.debug.Gate = &decision
		}
		if decision.Refuse {
			return o.refuse(st, decision.Reason), nil
		}
	}

	// LINK_DEFS
	defs := o.linkDefinitions(question, chunks, res.Sources)
	for _, def := range defs {
		res.DefinitionsLinked = append(res.DefinitionsLinked, def.Term)
	}

	// BUDGET
	questionTokens := o.tokenizer.Count(question)
	kept, info := o.budgeter.Enforce(chunks, questionTokens)
	if st.debug != nil {
		st.debug.Budget = &info
	}
	if len(kept) == 0 {
		return o.refuse(st, gate.ReasonEmptyContextAfterBudget), nil
	}
	res.ChunksUsed = len(kept)

	// ANSWER
	refusal := answer.RefusalString(st.req.Sources)
	stageStart = time.Now()
	gen, err := o.generator.Generate(ctx, question, kept, defs, refusal)
	o.metrics.ObserveStage("answer", time.Since(stageStart))
	if err != nil {
		return nil, err
	}
	res.InputTokens = gen.InputTokens
	res.OutputTokens = gen.OutputTokens
	if st.debug != nil {
		st.debug.AnswerModel = gen.Model
	}

	if answer.IsRefusal(gen.Text, refusal) {
		// The model judged the context insufficient. Canonical form, no
		// citations, no refusal reason (the gate did not trigger).
		res.Answer = refusal
		res.Refused = true
		o.finish(st, "refused")
		return res, nil
	}

	res.Answer = gen.Text
	for _, sc := range kept {
		res.Citations = append(res.Citations, Citation{
			Document:  sc.Chunk.DocumentName(),
			Section:   sc.Chunk.Section,
			PageStart: sc.Chunk.PageStart,
			PageEnd:   sc.Chunk.PageEnd,
			Source:    sc.Chunk.Source,
		})
	}

	// VALIDATE
	res.ValidationErrors = answer.Validate(gen.Text, false)
	if len(res.ValidationErrors) > 0 {
		o.logger.Warn("Answer violates output contract",
			"query_id", res.QueryID, "errors", res.ValidationErrors)
	}

	o.finish(st, "answered")
	return res, nil
}

// refuse produces the canonical refusal result and writes audit records.
func (o *Orchestrator) refuse(st *runState, reason gate.RefusalReason) *QueryResult {
	res := st.result
	res.Refused = true
	reasonStr := string(reason)
	res.RefusalReason = &reasonStr
	res.Answer = answer.RefusalString(st.req.Sources)
	res.Citations = []Citation{}

	o.metrics.RefusalsTotal.WithLabelValues(reasonStr).Inc()
	o.finish(st, "refused")
	return res
}

// finish stamps latency, emits audit records and counts the outcome.
func (o *Orchestrator) finish(st *runState, outcome string) {
	res := st.result
	res.LatencyMs = time.Since(st.started).Milliseconds()
	o.metrics.QueriesTotal.WithLabelValues(outcome).Inc()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	record := &audit.ComplianceRecord{
		Timestamp:           now,
		QueryID:             res.QueryID,
		Question:            res.OriginalQuestion,
		NormalizedQuery:     res.NormalizedQuestion,
		Sources:             res.Sources,
		SearchMode:          res.SearchMode,
		EffectiveSearchMode: res.EffectiveSearchMode,
		ChunksRetrieved:     res.ChunksRetrieved,
		ChunksUsed:          res.ChunksUsed,
		DefinitionsLinked:   res.DefinitionsLinked,
		TokensInput:         res.InputTokens,
		TokensOutput:        res.OutputTokens,
		LatencyMs:           res.LatencyMs,
		Refused:             res.Refused,
		RefusalReason:       res.RefusalReason,
		AnswerWordCount:     len(strings.Fields(res.Answer)),
		CitationCount:       len(res.Citations),
		ValidationErrors:    res.ValidationErrors,
	}
	o.sink.WriteCompliance(record)

	if st.debug != nil {
		st.debug.Timestamp = now
		st.debug.TotalDurationMs = res.LatencyMs
		o.sink.WriteDebug(st.debug)
	}
}

// traceRetrieval fills the debug record's per-index and fused lists.
func (o *Orchestrator) traceRetrieval(st *runState, trace *retrieval.Trace, candidates []retrieval.RetrievalCandidate) {
	if st.debug == nil || trace == nil {
		return
	}
	for _, src := range trace.Sources {
		for i, hit := range src.VectorHits {
			st.debug.VectorResults = append(st.debug.VectorResults, audit.RankedResult{
				ChunkID: hit.ChunkID, Rank: i + 1, Score: float64(hit.Score),
			})
		}
		for i, hit := range src.LexicalHits {
			st.debug.LexicalResults = append(st.debug.LexicalResults, audit.RankedResult{
				ChunkID: hit.ChunkID, Rank: i + 1, Score: hit.Score,
			})
		}
	}
	for i, c := range candidates {
		st.debug.FusedResults = append(st.debug.FusedResults, audit.RankedResult{
			ChunkID: c.ChunkID, Rank: i + 1, Score: c.RRFScore,
		})
	}
}

// linkDefinitions links per requested source and merges, keeping the first
// occurrence of each term.
func (o *Orchestrator) linkDefinitions(question string, chunks []retrieval.ScoredChunk, sources []string) []definitions.Definition {
	passages := make([]string, len(chunks))
	for i, sc := range chunks {
		passages[i] = sc.Chunk.Text
	}

	seen := make(map[string]bool)
	var merged []definitions.Definition
	for _, source := range sources {
		for _, def := range o.linker.Link(question, passages, source) {
			key := definitions.NormalizeTerm(def.Term)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, def)
		}
	}
	return merged
}

func (o *Orchestrator) knownSource(source string) bool {
	for _, s := range o.chunks.Sources() {
		if s == source {
			return true
		}
	}
	return false
}
