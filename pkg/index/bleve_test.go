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
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIndex creates the on-disk bleve index an ingest run would leave
// behind for one source.
func buildIndex(t *testing.T, root, source string, docs map[string]string) {
	t.Helper()

	idx, err := bleve.New(filepath.Join(root, source+".bleve"), bleve.NewIndexMapping())
	require.NoError(t, err)
	for id, text := range docs {
		require.NoError(t, idx.Index(id, map[string]interface{}{"text": text}))
	}
	require.NoError(t, idx.Close())
}

func TestQueryLexical(t *testing.T) {
	root := t.TempDir()
	buildIndex(t, root, "cme", map[string]string{
		"cme-001": "the subscriber shall pay all market data fees",
		"cme-002": "delayed data may be redistributed without charge",
		"cme-003": "audit rights survive termination of this agreement",
	})

	b := NewBleveLexicalIndex(root)
	defer b.Close()

	hits, err := b.QueryLexical(context.Background(), "cme", []string{"subscriber", "fees"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "cme-001", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestQueryLexicalRespectsK(t *testing.T) {
	root := t.TempDir()
	buildIndex(t, root, "cme", map[string]string{
		"cme-001": "fees fees fees",
		"cme-002": "fees and more fees",
		"cme-003": "fees",
	})

	b := NewBleveLexicalIndex(root)
	defer b.Close()

	hits, err := b.QueryLexical(context.Background(), "cme", []string{"fees"}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestQueryLexicalEmptyTokens(t *testing.T) {
	b := NewBleveLexicalIndex(t.TempDir())
	defer b.Close()

	hits, err := b.QueryLexical(context.Background(), "cme", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQueryLexicalMissingSource(t *testing.T) {
	b := NewBleveLexicalIndex(t.TempDir())
	defer b.Close()

	_, err := b.QueryLexical(context.Background(), "nope", []string{"fees"}, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestHasSource(t *testing.T) {
	root := t.TempDir()
	buildIndex(t, root, "cme", map[string]string{"cme-001": "fees"})

	b := NewBleveLexicalIndex(root)
	defer b.Close()

	assert.True(t, b.HasSource(context.Background(), "cme"))
	assert.False(t, b.HasSource(context.Background(), "opra"))
}
