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

package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/lexrag/pkg/definitions"
	"github.com/kadirpekel/lexrag/pkg/llms"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
	"github.com/kadirpekel/lexrag/pkg/store"
)

func TestRefusalString(t *testing.T) {
	assert.Equal(t,
		"This is not addressed in the provided CME documents.",
		RefusalString(nil))
	assert.Equal(t,
		"This is not addressed in the provided CME documents.",
		RefusalString([]string{}))
	assert.Equal(t,
		"This is not addressed in the provided OPRA documents.",
		RefusalString([]string{"opra", "cme"}))
}

func TestFormatChunk(t *testing.T) {
	sc := retrieval.ScoredChunk{Chunk: &store.Chunk{
		ID:           "c1",
		Source:       "cme",
		DocumentPath: "agreements/ila.pdf",
		Section:      "3.1 Fees",
		PageStart:    4,
		PageEnd:      5,
		Text:         "The Subscriber shall pay all fees.",
	}}

	got := FormatChunk(sc)
	assert.Equal(t,
		"[Document: agreements/ila.pdf | Section: 3.1 Fees | Pages 4-5 | Source: CME]\nThe Subscriber shall pay all fees.\n",
		got)
}

func TestFormatChunkNoSection(t *testing.T) {
	sc := retrieval.ScoredChunk{Chunk: &store.Chunk{
		Source:       "cme",
		DocumentPath: "a.pdf",
		PageStart:    1,
		PageEnd:      1,
		Text:         "x",
	}}
	got := FormatChunk(sc)
	assert.NotContains(t, got, "Section:")
	assert.Contains(t, got, "[Document: a.pdf | Pages 1-1 | Source: CME]")
}

func TestBuildUserPrompt(t *testing.T) {
	chunks := []retrieval.ScoredChunk{
		{Chunk: &store.Chunk{Source: "cme", DocumentPath: "a.pdf", PageStart: 1, PageEnd: 2, Text: "excerpt text"}},
	}
	defs := []definitions.Definition{
		{Term: "Subscriber", Text: "Any person receiving market data."},
	}
	refusal := RefusalString([]string{"cme"})

	prompt := buildUserPrompt("What is a subscriber?", chunks, defs, refusal)

	assert.Contains(t, prompt, "reply with exactly: "+refusal)
	assert.Contains(t, prompt, "excerpt text")
	assert.Contains(t, prompt, `"Subscriber": Any person receiving market data.`)
	assert.True(t, strings.HasSuffix(prompt, "Question: What is a subscriber?\n"))

	// The question comes after the context so the refusal instruction
	// cannot be displaced by a long excerpt list.
	assert.Less(t, strings.Index(prompt, "excerpt text"), strings.Index(prompt, "Question:"))
}

func TestIsRefusal(t *testing.T) {
	refusal := RefusalString([]string{"cme"})

	assert.True(t, IsRefusal(refusal, refusal))
	assert.True(t, IsRefusal("## Answer\n"+refusal, refusal))
	assert.True(t, IsRefusal("  ## Answer\n"+refusal+"\n", refusal))
	assert.False(t, IsRefusal("## Answer\nSubscribers pay fees.", refusal))
	assert.False(t, IsRefusal("", refusal))
	// Refusal for a different source tag is not this request's refusal.
	assert.False(t, IsRefusal(RefusalString([]string{"opra"}), refusal))
}

func TestValidate(t *testing.T) {
	full := "## Answer\nSubscribers pay fees.\n\n" +
		"## Supporting Clauses\n> \"The Subscriber shall pay all fees.\" (ila.pdf, 3.1, pp. 4-5)\n\n" +
		"## Citations\nila.pdf | 3.1 Fees | 4-5\n"

	assert.Empty(t, Validate(full, false))

	errs := Validate("## Answer\nSubscribers pay fees.\n", false)
	assert.Contains(t, errs, "missing ## Supporting Clauses section")
	assert.Contains(t, errs, "missing ## Citations section")

	errs = Validate("## Answer\n\n## Supporting Clauses\nx\n## Citations\ny\n", false)
	assert.Contains(t, errs, "empty ## Answer section")

	// Refusals only need the Answer section.
	refusal := "## Answer\n" + RefusalString(nil)
	assert.Empty(t, Validate(refusal, true))
	assert.NotEmpty(t, Validate("no sections at all", true))
}

func TestValidateOptionalDefinitions(t *testing.T) {
	withDefs := "## Answer\na\n## Supporting Clauses\nb\n## Definitions\nc\n## Citations\nd\n"
	assert.Empty(t, Validate(withDefs, false))
}

type fixedLLM struct {
	text string
	req  llms.CompletionRequest
}

func (f *fixedLLM) Complete(_ context.Context, req llms.CompletionRequest) (*llms.Completion, error) {
	f.req = req
	return &llms.Completion{Text: f.text, InputTokens: 100, OutputTokens: 20, Model: "fixed"}, nil
}

func (f *fixedLLM) ModelName() string { return "fixed" }
func (f *fixedLLM) Close() error      { return nil }

func TestGenerate(t *testing.T) {
	llm := &fixedLLM{text: "  ## Answer\nok\n"}
	g := NewGenerator(llm)

	chunks := []retrieval.ScoredChunk{
		{Chunk: &store.Chunk{Source: "cme", DocumentPath: "a.pdf", Text: "t"}},
	}
	gen, err := g.Generate(context.Background(), "q", chunks, nil, RefusalString(nil))
	require.NoError(t, err)

	assert.Equal(t, "## Answer\nok", gen.Text)
	assert.Equal(t, 100, gen.InputTokens)
	assert.Equal(t, 20, gen.OutputTokens)
	assert.Equal(t, "fixed", gen.Model)

	assert.Equal(t, float64(0), llm.req.Temperature)
	assert.Equal(t, answerMaxTokens, llm.req.MaxTokens)
	assert.Contains(t, llm.req.System, "## Supporting Clauses")
}
