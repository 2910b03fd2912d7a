// Package llm sends assembled prompts to a hosted completion model.
package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ServiceError is a non-success status or malformed response from the
// completion service. Message carries the upstream explanation when it has one.
type ServiceError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("generation service error (status %d): %s", e.Status, e.Message)
	case e.Message != "":
		return "generation service error: " + e.Message
	case e.Err != nil:
		return "generation service error: " + e.Err.Error()
	}
	return fmt.Sprintf("generation service error (status %d)", e.Status)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// upstreamError builds a ServiceError from a failed response, pulling
// {"error":{"message":...}} out of the body when present.
func upstreamError(resp *http.Response) *ServiceError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ServiceError{Status: resp.StatusCode, Message: msg}
}
