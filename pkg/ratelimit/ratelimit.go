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

// Package ratelimit provides per-credential request throttling for the
// HTTP front.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is the throttling contract the server needs. A memory-local
// implementation covers a single process; multi-instance deployments need
// an external coordinator behind the same interface.
type Limiter interface {
	// Allow reports whether the credential may proceed, how many requests
	// remain in the current window, and when the window resets (unix
	// seconds).
	Allow(credentialID string) (allowed bool, remaining int, resetEpoch int64)
}

// window is the sliding-window span.
const window = 60 * time.Second

// SlidingWindow is an in-memory Limiter allowing limit requests per
// credential per 60 seconds. Counters are pruned as they expire.
type SlidingWindow struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewSlidingWindow creates a limiter with the given per-minute limit.
func NewSlidingWindow(limit int) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

// Allow implements Limiter.
func (l *SlidingWindow) Allow(credentialID string) (bool, int, int64) {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamps := l.history[credentialID]
	live := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	reset := now.Add(window).Unix()
	if len(live) > 0 {
		reset = live[0].Add(window).Unix()
	}

	if len(live) >= l.limit {
		l.history[credentialID] = live
		return false, 0, reset
	}

	live = append(live, now)
	l.history[credentialID] = live
	return true, l.limit - len(live), reset
}

// Limit returns the configured window limit.
func (l *SlidingWindow) Limit() int {
	return l.limit
}

var _ Limiter = (*SlidingWindow)(nil)
