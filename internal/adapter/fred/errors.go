package fred

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrRejected marks a request the API refused for a reason retrying cannot
	// fix, such as a bad API key or an unknown series.
	ErrRejected = errors.New("fred: request rejected")

	// ErrExhausted marks a fetch that failed on every attempt of its budget.
	// The last attempt error stays in the chain.
	ErrExhausted = errors.New("fred: retries exhausted")

	// ErrEmptyResult marks a successful response whose record list was empty.
	ErrEmptyResult = errors.New("fred: empty result")
)

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fred API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("fred API error: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth another attempt: server
// errors, request timeouts, and rate limiting.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// errorBody is the JSON error document the API returns with 4xx responses.
type errorBody struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// newAPIError builds the error for a non-200 response, wrapping ErrRejected
// when the status is not retryable.
func newAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.ErrorMessage != "" {
		apiErr.Message = eb.ErrorMessage
	}
	if len(apiErr.Message) > 512 {
		apiErr.Message = apiErr.Message[:512]
	}
	if apiErr.Retryable() {
		return apiErr
	}
	return fmt.Errorf("%w: %w", ErrRejected, apiErr)
}
