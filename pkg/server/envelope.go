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

// Package server is the HTTP front: routing, auth, rate limiting, Slack
// signature verification and error mapping around the query pipeline.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kadirpekel/lexrag/pkg/llms"
	"github.com/kadirpekel/lexrag/pkg/pipeline"
	"github.com/kadirpekel/lexrag/pkg/retrieval"
)

// Error codes shared by all endpoints.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeEmptyQuestion      = "EMPTY_QUESTION"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeSourceNotFound     = "SOURCE_NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeLLMUpstreamError   = "LLM_UPSTREAM_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Envelope wraps every response, success or error.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"requestID"`
}

// APIError is the error half of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeEnvelope(w, status, Envelope{
		Success:   true,
		Data:      data,
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, status, Envelope{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// mapError translates pipeline and infrastructure errors to the HTTP
// taxonomy. Refusals never reach here; they are successful results.
func mapError(err error) (int, string, string) {
	var srcErr *pipeline.SourceNotFoundError
	var llmErr *llms.Error

	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest, CodeEmptyQuestion, "question must not be empty"
	case errors.Is(err, pipeline.ErrInvalidOptions):
		return http.StatusBadRequest, CodeValidationError, err.Error()
	case errors.As(err, &srcErr):
		return http.StatusNotFound, CodeSourceNotFound, srcErr.Error()
	case errors.Is(err, retrieval.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable, CodeServiceUnavailable, "retrieval backends unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeServiceUnavailable, "request deadline exceeded"
	case errors.As(err, &llmErr):
		if llmErr.Kind == llms.ErrKindTimeout {
			return http.StatusServiceUnavailable, CodeServiceUnavailable, "upstream LLM timed out"
		}
		return http.StatusBadGateway, CodeLLMUpstreamError, "upstream LLM request failed"
	default:
		return http.StatusInternalServerError, CodeInternalError, "internal error"
	}
}
