package chat

import (
	"errors"
	"fmt"
)

// FailureNotice is the assistant message appended to the conversation when a
// turn fails.
const FailureNotice = "Sorry, something went wrong. Please try again."

var (
	// ErrRequestFailed matches every *RequestFailedError.
	ErrRequestFailed = errors.New("chat request failed")

	// ErrStreamError matches every *StreamError.
	ErrStreamError = errors.New("stream error")

	// ErrIncompleteStream is returned when the response ends before a done
	// event arrives.
	ErrIncompleteStream = errors.New("stream ended without a done event")

	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport error")
)

// RequestFailedError is returned when the backend answers with a non-2xx
// status.
type RequestFailedError struct {
	StatusCode int

	// Body is the beginning of the response body, if any.
	Body string
}

func (e *RequestFailedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *RequestFailedError) Is(target error) bool {
	return target == ErrRequestFailed
}

// StreamError carries the message of an error event sent by the backend.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "backend reported an error"
	}
	return "backend reported an error: " + e.Message
}

func (e *StreamError) Is(target error) bool {
	return target == ErrStreamError
}

// TransportError wraps a failure to send the request or read the response,
// including a response line longer than the sse reader accepts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
