package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the API layer.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a request or a backoff sleep.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents HTTP 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError carries the HTTP status and classification of a failed call.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Procedure  string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("civitai %s error (status %d) calling %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Procedure, e.Message, e.Err)
	}
	return fmt.Sprintf("civitai %s error (status %d) calling %s: %s",
		e.ErrorClass, e.StatusCode, e.Procedure, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus categorizes an HTTP status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// ClassOf extracts the error class from an error. Non-API errors are treated
// as network failures, except that errors whose text signals a 429 are
// reported as rate limiting (some proxies surface 429 only in the message).
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	if err != nil && strings.Contains(err.Error(), "429") {
		return ErrorClassRateLimit
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error class is transient-retryable.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx errors are permanent, retrying wastes the rate budget.
		return false
	}
}
