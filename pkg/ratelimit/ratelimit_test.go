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

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenLimiter(limit int) (*SlidingWindow, *time.Time) {
	l := NewSlidingWindow(limit)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := frozenLimiter(3)

	allowed, remaining, _ := l.Allow("cred")
	assert.True(t, allowed)
	assert.Equal(t, 2, remaining)

	allowed, remaining, _ = l.Allow("cred")
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining, _ = l.Allow("cred")
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestDeniesPastLimit(t *testing.T) {
	l, now := frozenLimiter(2)

	l.Allow("cred")
	l.Allow("cred")

	allowed, remaining, reset := l.Allow("cred")
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	// Reset is when the oldest request ages out.
	assert.Equal(t, now.Add(window).Unix(), reset)
}

func TestWindowSlides(t *testing.T) {
	l, now := frozenLimiter(2)

	l.Allow("cred")
	l.Allow("cred")

	allowed, _, _ := l.Allow("cred")
	require.False(t, allowed)

	// 61 seconds later both requests have expired.
	*now = now.Add(61 * time.Second)
	allowed, remaining, _ := l.Allow("cred")
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestPartialExpiry(t *testing.T) {
	l, now := frozenLimiter(2)

	l.Allow("cred")
	*now = now.Add(30 * time.Second)
	l.Allow("cred")

	// Only the first request has aged out.
	*now = now.Add(31 * time.Second)
	allowed, remaining, _ := l.Allow("cred")
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _, _ = l.Allow("cred")
	assert.False(t, allowed)
}

func TestCredentialsAreIndependent(t *testing.T) {
	l, _ := frozenLimiter(1)

	allowed, _, _ := l.Allow("a")
	assert.True(t, allowed)

	allowed, _, _ = l.Allow("a")
	assert.False(t, allowed)

	allowed, _, _ = l.Allow("b")
	assert.True(t, allowed)
}

func TestLimit(t *testing.T) {
	l := NewSlidingWindow(42)
	assert.Equal(t, 42, l.Limit())
}
