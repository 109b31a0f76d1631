package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRemote matches any QueryError carrying a remote-reported error payload.
	ErrRemote = errors.New("remote query error")
)

// ErrorClass represents a classification of query failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRemote represents a non-empty errors array in the response body.
	ErrorClassRemote ErrorClass = "remote"

	// ErrorClassDecode represents a response that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"
)

// QueryError is a failed query with its classification.
type QueryError struct {
	Operation  string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface. Remote errors read as the first
// reported message, unadorned.
func (e *QueryError) Error() string {
	if e.Class == ErrorClassRemote {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (status %d): %s: %v",
			e.Operation, e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error (status %d): %s",
		e.Operation, e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is reports remote errors as ErrRemote.
func (e *QueryError) Is(target error) bool {
	return target == ErrRemote && e.Class == ErrorClassRemote
}

// ClassOf returns the class of err, or "" when err is not a QueryError.
func ClassOf(err error) ErrorClass {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Class
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// client, remote and decode failures repeat deterministically
		return false
	}
}
