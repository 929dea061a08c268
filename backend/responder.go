package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Responder produces the reply to one user message. It calls emit once per
// text fragment, in order. An error returned by Respond is reported to the
// client as an error event.
type Responder interface {
	Respond(ctx context.Context, sessionID, message string, emit func(text string) error) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, sessionID, message string, emit func(text string) error) error

func (f ResponderFunc) Respond(ctx context.Context, sessionID, message string, emit func(text string) error) error {
	return f(ctx, sessionID, message, emit)
}

// EchoResponder repeats the user's message back one word at a time and
// counts turns per session.
type EchoResponder struct {
	mu    sync.Mutex
	turns map[string]int
}

// NewEchoResponder returns an EchoResponder with no sessions.
func NewEchoResponder() *EchoResponder {
	return &EchoResponder{turns: make(map[string]int)}
}

func (e *EchoResponder) Respond(ctx context.Context, sessionID, message string, emit func(text string) error) error {
	turn := e.nextTurn(sessionID)

	for _, word := range strings.SplitAfter(EchoReply(message, turn), " ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(word); err != nil {
			return err
		}
	}

	return nil
}

// Turns returns how many messages sessionID has sent.
func (e *EchoResponder) Turns(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turns[sessionID]
}

func (e *EchoResponder) nextTurn(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns[sessionID]++
	return e.turns[sessionID]
}

// EchoReply is the full text EchoResponder streams for message on the given
// turn.
func EchoReply(message string, turn int) string {
	return fmt.Sprintf("You said: %s (message %d in this session)", message, turn)
}
