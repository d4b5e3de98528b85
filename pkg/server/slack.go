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

package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kadirpekel/lexrag/pkg/pipeline"
)

const (
	headerSignature = "X-Signature"
	headerTimestamp = "X-Request-Timestamp"

	signaturePrefix = "v0="

	// maxSlackBody bounds the callback payload read.
	maxSlackBody = 1 << 20
)

// verifySlackSignature checks the HMAC signature over the raw body. The
// timestamp window blocks replay; comparison is constant time.
func verifySlackSignature(secret string, maxAge time.Duration, timestamp, signature string, body []byte, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp")
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(maxAge.Seconds()) {
		return fmt.Errorf("timestamp outside allowed window")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// slackMessage is the payload posted back to the response URL and used for
// the immediate acknowledgement.
type slackMessage struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// handleSlackCommand verifies the callback, acknowledges within the
// platform's 3 second window, and answers asynchronously via response_url.
// No bearer token applies here; the signature is the only credential.
func (s *Server) handleSlackCommand(w http.ResponseWriter, r *http.Request) {
	slackCfg := s.cfg.Server.Slack
	if slackCfg == nil {
		writeError(w, r, http.StatusNotFound, CodeValidationError, "slack integration not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSlackBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidationError, "unreadable request body")
		return
	}

	if err := verifySlackSignature(
		slackCfg.SigningSecret,
		slackCfg.SignatureMaxAge,
		r.Header.Get(headerTimestamp),
		r.Header.Get(headerSignature),
		body,
		time.Now(),
	); err != nil {
		s.logger.Warn("Rejected slack callback", "error", err)
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid signature")
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidationError, "malformed form body")
		return
	}

	question := form.Get("text")
	responseURL := form.Get("response_url")
	userHash := hashUserID(form.Get("user_id"))

	if question == "" {
		ack(w, "Usage: /ask <question>")
		return
	}
	if responseURL == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidationError, "missing response_url")
		return
	}

	s.logger.Info("Slack command accepted", "user", userHash,
		"request_id", requestIDFrom(r.Context()))
	ack(w, "Looking that up, one moment...")

	go s.answerSlack(question, responseURL, userHash)
}

func ack(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(slackMessage{ResponseType: "ephemeral", Text: text})
}

// answerSlack runs the pipeline outside the callback's lifetime and posts
// the result to the response URL.
func (s *Server) answerSlack(question, responseURL, userHash string) {
	ctx, cancel := s.requestContext()
	defer cancel()

	text := ""
	result, err := s.orchestrator.Query(ctx, &pipeline.Request{Question: question})
	switch {
	case err != nil:
		s.logger.Error("Slack query failed", "user", userHash, "error", err)
		text = "Sorry, something went wrong answering that. Please try again."
	default:
		text = result.Answer
	}

	if err := s.postSlackResponse(ctx, responseURL, text); err != nil {
		s.logger.Error("Failed to post slack response", "user", userHash, "error", err)
	}
}

func (s *Server) postSlackResponse(ctx context.Context, responseURL, text string) error {
	payload, err := json.Marshal(slackMessage{ResponseType: "in_channel", Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("response_url returned HTTP %d", resp.StatusCode)
	}
	return nil
}
