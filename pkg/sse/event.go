// Package sse reads and writes the line-delimited server-sent-events framing
// used by the chat endpoint.
//
// The chat stream carries one event per line:
//
//	data: {"type":"chunk","text":"Let me "}
//	data: {"type":"chunk","text":"check."}
//	data: {"type":"done","session_id":"s1"}
//
// Lines without the "data: " prefix (comments, keep-alives, blank separator
// lines) carry no event. The payload decodes to one of a closed set of event
// variants: Chunk, Done, Error, plus Unknown for types this client does not
// know about.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"errors"
	"fmt"
)

// Kind is the "type" discriminator of an event payload.
type Kind string

const (
	KindChunk Kind = "chunk"
	KindDone  Kind = "done"
	KindError Kind = "error"
)

// Event is one decoded stream event. The concrete type is always one of
// Chunk, Done, Error or Unknown.
type Event interface {
	Kind() Kind
	sealed()
}

// Chunk is an incremental fragment of assistant text.
type Chunk struct {
	Text string
}

// Done ends a turn and carries the session identifier assigned by the
// backend.
type Done struct {
	SessionID string
}

// Error is a failure reported by the backend in the middle of a stream.
type Error struct {
	Message string
}

// Unknown is a well-formed event with a type this client does not handle.
type Unknown struct {
	Type string

	// Payload is the raw JSON payload.
	Payload string
}

func (Chunk) Kind() Kind     { return KindChunk }
func (Done) Kind() Kind      { return KindDone }
func (Error) Kind() Kind     { return KindError }
func (u Unknown) Kind() Kind { return Kind(u.Type) }

func (Chunk) sealed()   {}
func (Done) sealed()    {}
func (Error) sealed()   {}
func (Unknown) sealed() {}

// ErrMalformedEvent matches every *MalformedEventError via errors.Is.
var ErrMalformedEvent = errors.New("malformed event")

// MalformedEventError is returned for a data line whose payload does not
// decode to the expected shape.
type MalformedEventError struct {
	Line   string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent
}
