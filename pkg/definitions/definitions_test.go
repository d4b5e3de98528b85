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

package definitions

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDefinitions(t *testing.T, root, source, content string) {
	t.Helper()
	dir := filepath.Join(root, source)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.ndjson"), []byte(content), 0o644))
}

func TestFileStoreLoads(t *testing.T) {
	root := t.TempDir()
	writeDefinitions(t, root, "cme",
		`{"term":"Subscriber","text":"Any person receiving market data.","source_chunk_id":"c1"}
{"term":"Vendor","text":"A redistributor of market data.","source_chunk_id":"c2"}
`)

	s := NewFileStore(root, testLogger())
	defs := s.Definitions("cme")
	require.Len(t, defs, 2)

	// Keys are normalized; originals are preserved in the value.
	def, ok := defs["subscriber"]
	require.True(t, ok)
	assert.Equal(t, "Subscriber", def.Term)
	assert.Equal(t, "c1", def.SourceChunkID)
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(t.TempDir(), testLogger())
	assert.Empty(t, s.Definitions("cme"))
}

func TestFileStoreMalformedFile(t *testing.T) {
	root := t.TempDir()
	writeDefinitions(t, root, "cme", "not json\n")

	s := NewFileStore(root, testLogger())
	// Parse errors degrade to no definitions rather than failing queries.
	assert.Empty(t, s.Definitions("cme"))
}

func TestFileStoreCachesPerSource(t *testing.T) {
	root := t.TempDir()
	writeDefinitions(t, root, "cme", `{"term":"Subscriber","text":"x"}`+"\n")

	s := NewFileStore(root, testLogger())
	require.Len(t, s.Definitions("cme"), 1)

	// Later file changes are invisible until restart.
	writeDefinitions(t, root, "cme", `{"term":"Subscriber","text":"x"}
{"term":"Vendor","text":"y"}
`)
	assert.Len(t, s.Definitions("cme"), 1)
}

// mapStore is an in-memory Store for linker tests.
type mapStore struct {
	defs map[string]map[string]Definition
}

func (m *mapStore) Definitions(source string) map[string]Definition {
	return m.defs[source]
}

func linkerWith(terms ...string) *Linker {
	defs := make(map[string]Definition, len(terms))
	for _, term := range terms {
		defs[NormalizeTerm(term)] = Definition{Term: term, Text: "definition of " + term}
	}
	return NewLinker(&mapStore{defs: map[string]map[string]Definition{"cme": defs}})
}

func TestLinkQuotedTerms(t *testing.T) {
	l := linkerWith("delayed data", "subscriber")

	linked := l.Link(`What does "delayed data" mean?`, nil, "cme")
	require.Len(t, linked, 1)
	assert.Equal(t, "delayed data", linked[0].Term)

	// Smart quotes match too.
	linked = l.Link("What does “delayed data” mean?", nil, "cme")
	require.Len(t, linked, 1)
}

func TestLinkCapitalizedPhrases(t *testing.T) {
	l := linkerWith("Market Data Subscriber", "Subscriber")

	linked := l.Link("Does a Market Data Subscriber pay fees?", nil, "cme")
	require.Len(t, linked, 2)
	// Full phrase first, then its individual words.
	assert.Equal(t, "Market Data Subscriber", linked[0].Term)
	assert.Equal(t, "Subscriber", linked[1].Term)
}

func TestLinkMatchingIsCaseInsensitiveExact(t *testing.T) {
	l := linkerWith("subscriber")

	linked := l.Link(`"SUBSCRIBER"`, nil, "cme")
	require.Len(t, linked, 1)

	// Substrings never match.
	assert.Empty(t, l.Link(`"subscribers"`, nil, "cme"))
}

func TestLinkScansPassagesAndDedupes(t *testing.T) {
	l := linkerWith("Subscriber", "Vendor")

	passages := []string{
		"Each Subscriber reports monthly.",
		"The Vendor invoices each Subscriber.",
	}
	linked := l.Link("Who pays?", passages, "cme")
	require.Len(t, linked, 2)
	assert.Equal(t, "Subscriber", linked[0].Term)
	assert.Equal(t, "Vendor", linked[1].Term)
}

func TestLinkQuestionBeforePassages(t *testing.T) {
	l := linkerWith("Subscriber", "Vendor")

	// Vendor appears in the question, Subscriber only in a passage; the
	// question's terms come first.
	linked := l.Link(`Is a "Vendor" liable?`, []string{"The Subscriber pays."}, "cme")
	require.Len(t, linked, 2)
	assert.Equal(t, "Vendor", linked[0].Term)
	assert.Equal(t, "Subscriber", linked[1].Term)
}

func TestLinkNoDefinitionsForSource(t *testing.T) {
	l := NewLinker(&mapStore{defs: map[string]map[string]Definition{}})
	assert.Empty(t, l.Link(`"Subscriber"`, nil, "cme"))
}

func TestNormalizeTerm(t *testing.T) {
	assert.Equal(t, "subscriber", NormalizeTerm("  Subscriber "))
	assert.Equal(t, "", NormalizeTerm("   "))
}
