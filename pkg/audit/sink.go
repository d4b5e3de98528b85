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
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/kadirpekel/lexrag/pkg/config"
)

// degradedAfterFailures is the consecutive compliance-write failure count
// that flips the sink (and the server's /query endpoint) into degraded
// mode. A single successful write recovers.
const degradedAfterFailures = 3

// Sink owns the two audit streams. Callers enqueue records and move on; a
// writer goroutine per stream serializes the file writes. When a queue is
// full, debug records are dropped and counted, while compliance records
// degrade to a synchronous write. Compliance records are never dropped.
type Sink struct {
	compliance *stream
	debug      *stream
	logger     *slog.Logger

	complianceFailures atomic.Int64
	debugDrops         atomic.Int64
}

type stream struct {
	writer *RotatingWriter
	queue  chan []byte
	done   chan struct{}
}

// NewSink opens both streams under cfg.Dir and starts their writers.
func NewSink(cfg *config.AuditConfig, logger *slog.Logger) (*Sink, error) {
	complianceWriter, err := NewRotatingWriter(
		filepath.Join(cfg.Dir, "queries.ndjson"), cfg.MaxBytes, cfg.Backups)
	if err != nil {
		return nil, fmt.Errorf("failed to open compliance stream: %w", err)
	}
	debugWriter, err := NewRotatingWriter(
		filepath.Join(cfg.Dir, "debug.ndjson"), cfg.DebugMaxBytes, cfg.DebugBackups)
	if err != nil {
		complianceWriter.Close()
		return nil, fmt.Errorf("failed to open debug stream: %w", err)
	}

	s := &Sink{
		compliance: newStream(complianceWriter, cfg.QueueSize),
		debug:      newStream(debugWriter, cfg.QueueSize),
		logger:     logger,
	}
	go s.drain(s.compliance, true)
	go s.drain(s.debug, false)
	return s, nil
}

func newStream(w *RotatingWriter, queueSize int) *stream {
	return &stream{
		writer: w,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// WriteCompliance enqueues a compliance record. If the queue is full the
// write happens synchronously on the caller's goroutine instead; the
// record is never dropped.
func (s *Sink) WriteCompliance(record *ComplianceRecord) {
	line, err := marshalRecord(record)
	if err != nil {
		s.logger.Error("Failed to marshal compliance record", "error", err)
		s.complianceFailures.Add(1)
		return
	}

	select {
	case s.compliance.queue <- line:
	default:
		s.write(s.compliance, line, true)
	}
}

// WriteDebug enqueues a debug record. Full queue drops the record and
// bumps a counter; debug records are best-effort.
func (s *Sink) WriteDebug(record *DebugRecord) {
	line, err := marshalRecord(record)
	if err != nil {
		s.logger.Error("Failed to marshal debug record", "error", err)
		return
	}

	select {
	case s.debug.queue <- line:
	default:
		s.debugDrops.Add(1)
	}
}

// Healthy reports whether the compliance stream is accepting writes. The
// server refuses new queries while unhealthy.
func (s *Sink) Healthy() bool {
	return s.complianceFailures.Load() < degradedAfterFailures
}

// DebugDrops returns the number of debug records dropped so far.
func (s *Sink) DebugDrops() int64 {
	return s.debugDrops.Load()
}

// Close drains both queues and closes the files.
func (s *Sink) Close() error {
	close(s.compliance.queue)
	close(s.debug.queue)
	<-s.compliance.done
	<-s.debug.done

	var firstErr error
	if err := s.compliance.writer.Close(); err != nil {
		firstErr = err
	}
	if err := s.debug.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Sink) drain(st *stream, compliance bool) {
	defer close(st.done)
	for line := range st.queue {
		s.write(st, line, compliance)
	}
}

func (s *Sink) write(st *stream, line []byte, compliance bool) {
	err := st.writer.Write(line)
	if !compliance {
		if err != nil {
			s.debugDrops.Add(1)
		}
		return
	}
	if err != nil {
		n := s.complianceFailures.Add(1)
		s.logger.Error("Compliance audit write failed", "error", err, "consecutive_failures", n)
		return
	}
	s.complianceFailures.Store(0)
}

func marshalRecord(v any) ([]byte, error) {
	line, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
