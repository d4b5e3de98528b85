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

package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/lexrag/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.ndjson")
	w, err := NewRotatingWriter(path, 1024, 3)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write([]byte("one\n")))
	require.NoError(t, w.Write([]byte("two\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.ndjson")
	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)
	defer w.Close()

	// 8 bytes each; the second write would exceed 10 and rotates first.
	require.NoError(t, w.Write([]byte("AAAAAAA\n")))
	require.NoError(t, w.Write([]byte("BBBBBBB\n")))
	require.NoError(t, w.Write([]byte("CCCCCCC\n")))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CCCCCCC\n", string(current))

	backup1, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBB\n", string(backup1))

	backup2, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAA\n", string(backup2))
}

func TestRotatingWriterDropsOldestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.ndjson")
	w, err := NewRotatingWriter(path, 10, 1)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write([]byte("AAAAAAA\n")))
	require.NoError(t, w.Write([]byte("BBBBBBB\n")))
	require.NoError(t, w.Write([]byte("CCCCCCC\n")))

	// Only one backup survives; the oldest record is gone.
	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBB\n", string(backup))

	_, err = os.Stat(path + ".2")
	assert.True(t, os.IsNotExist(err))
}

// A record is never split across files: rotation happens between writes.
func TestRotatingWriterRecordAtomicity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.ndjson")
	w, err := NewRotatingWriter(path, 20, 3)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write([]byte("0123456789012345\n"))) // 17 bytes
	require.NoError(t, w.Write([]byte("abcdefghij\n")))       // would split at 20

	current, _ := os.ReadFile(path)
	backup, _ := os.ReadFile(path + ".1")
	assert.Equal(t, "abcdefghij\n", string(current))
	assert.Equal(t, "0123456789012345\n", string(backup))
}

func testAuditConfig(dir string) *config.AuditConfig {
	cfg := &config.AuditConfig{Dir: dir}
	cfg.SetDefaults()
	return cfg
}

func TestSinkWritesComplianceRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(testAuditConfig(dir), testLogger())
	require.NoError(t, err)

	sink.WriteCompliance(&ComplianceRecord{
		Timestamp: "2026-08-24T00:00:00Z",
		QueryID:   "q1",
		Question:  "What is a subscriber?",
		Refused:   false,
	})
	sink.WriteCompliance(&ComplianceRecord{
		Timestamp: "2026-08-24T00:00:01Z",
		QueryID:   "q2",
		Refused:   true,
	})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "queries.ndjson"))
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var rec ComplianceRecord
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "q1", rec.QueryID)
	assert.Equal(t, "What is a subscriber?", rec.Question)

	// The stream uses the stable snake_case field names.
	assert.True(t, strings.Contains(string(lines[0]), `"query_id":"q1"`))
}

func TestSinkWritesDebugRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(testAuditConfig(dir), testLogger())
	require.NoError(t, err)

	sink.WriteDebug(&DebugRecord{QueryID: "q1", TotalDurationMs: 42})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "debug.ndjson"))
	require.NoError(t, err)

	var rec DebugRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "q1", rec.QueryID)
	assert.EqualValues(t, 42, rec.TotalDurationMs)
}

func TestSinkComplianceNeverDroppedOnFullQueue(t *testing.T) {
	dir := t.TempDir()
	cfg := testAuditConfig(dir)
	cfg.QueueSize = 1
	sink, err := NewSink(cfg, testLogger())
	require.NoError(t, err)

	// Far more records than the queue holds; the overflow degrades to
	// synchronous writes instead of dropping.
	const n = 100
	for i := 0; i < n; i++ {
		sink.WriteCompliance(&ComplianceRecord{QueryID: "q"})
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "queries.ndjson"))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, n)
	assert.True(t, sink.Healthy())
}

func TestSinkHealthyByDefault(t *testing.T) {
	sink, err := NewSink(testAuditConfig(t.TempDir()), testLogger())
	require.NoError(t, err)
	defer sink.Close()

	assert.True(t, sink.Healthy())
	assert.EqualValues(t, 0, sink.DebugDrops())
}
