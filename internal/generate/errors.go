// Package generate talks to the content generation backend.
package generate

import (
	"errors"
	"fmt"
)

// NetworkError means the request could not be sent or no response arrived.
type NetworkError struct {
	Op  string // Operation that failed (e.g., "request", "read response")
	Err error  // Underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("generate: %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError means the backend answered with a non-success status.
// The response body is not inspected.
type ServerError struct {
	StatusCode int
	Status     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("generate: server error: %s", e.Status)
}

// ParseError means the success response body was not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("generate: invalid response body: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Error kinds reported by Kind.
const (
	KindNetwork = "network"
	KindServer  = "server"
	KindParse   = "parse"
	KindUnknown = "unknown"
)

// Kind classifies err as one of the Kind* constants. It returns "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return KindServer
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return KindParse
	}

	return KindUnknown
}
