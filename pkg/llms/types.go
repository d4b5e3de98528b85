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

// Package llms provides LLM vendor adapters behind a single completion
// interface. Providers are small closed implementations, one per vendor.
package llms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CompletionRequest is a single non-streaming completion call.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completion is the result of a completion call with vendor-reported usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// LLMProvider is the narrow interface the pipeline consumes.
// Implementations must honor ctx cancellation and deadlines.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	ModelName() string
	Close() error
}

// ErrorKind classifies upstream LLM failures so callers can decide between
// local recovery, graceful degradation, and surfacing a 502.
type ErrorKind string

const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindRateLimit ErrorKind = "rate_limit"
	ErrKindTransport ErrorKind = "transport"
	ErrKindAPI       ErrorKind = "api"
)

// Error is a typed upstream LLM error.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, defaulting to transport for plain errors.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindTransport
}

// wrapTransport classifies a transport-level error, promoting deadline
// expiry to a timeout kind.
func wrapTransport(provider string, err error) *Error {
	kind := ErrKindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrKindTimeout
	}
	return &Error{Kind: kind, Provider: provider, Message: err.Error(), Err: err}
}

// wrapStatus classifies an HTTP status from the vendor.
func wrapStatus(provider string, status int, message string) *Error {
	kind := ErrKindAPI
	switch status {
	case 429:
		kind = ErrKindRateLimit
	case 408, 504:
		kind = ErrKindTimeout
	}
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Message: message}
}

// defaultTimeout bounds a single vendor call when the caller supplies no
// deadline of its own.
const defaultTimeout = 60 * time.Second

func withDefaultDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
