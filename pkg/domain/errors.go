package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind groups errors by how the controller reacts to them.
type ErrorKind string

const (
	// KindTransient errors are retried by the backoff executor.
	KindTransient ErrorKind = "transient"
	// KindRateLimited errors consume the per-query rate limit budget.
	KindRateLimited ErrorKind = "rate_limited"
	// KindParsing errors come from malformed oracle output.
	KindParsing ErrorKind = "parsing"
	// KindFatal errors are not retried.
	KindFatal ErrorKind = "fatal"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatusCode() int
}

// ToolError is returned by a tool whose backend failed after retries. Its
// message is the observation text shown to the oracle.
type ToolError struct {
	Tool       string
	Backend    string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("An error occurred while searching %s: %v", e.Backend, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// HTTPStatusCode implements StatusCoder.
func (e *ToolError) HTTPStatusCode() int { return e.StatusCode }

// NewToolError classifies err and wraps it.
func NewToolError(tool, backend string, err error) *ToolError {
	te := &ToolError{Tool: tool, Backend: backend, Err: err, Kind: Classify(err)}
	var sc StatusCoder
	if errors.As(err, &sc) {
		te.StatusCode = sc.HTTPStatusCode()
	}
	return te
}

// OracleError is returned by oracles for failed model calls.
type OracleError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *OracleError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oracle error (%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("oracle error: %v", e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// HTTPStatusCode implements StatusCoder.
func (e *OracleError) HTTPStatusCode() int { return e.StatusCode }

// KindFromStatus maps an HTTP status code to an ErrorKind.
func KindFromStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout, code >= 500:
		return KindTransient
	case code >= 400:
		return KindFatal
	}
	return KindTransient
}

// Classify returns the kind of err. Structured information wins: an
// explicit kind, then a status code. Only when neither exists does it fall
// back to looking for "429" in the message.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var te *ToolError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}
	var oe *OracleError
	if errors.As(err, &oe) && oe.Kind != "" {
		return oe.Kind
	}
	var sc StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() != 0 {
		return KindFromStatus(sc.HTTPStatusCode())
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if strings.Contains(err.Error(), "429") {
		return KindRateLimited
	}
	return KindTransient
}

// IsRateLimited is shorthand for Classify(err) == KindRateLimited.
func IsRateLimited(err error) bool {
	return Classify(err) == KindRateLimited
}
