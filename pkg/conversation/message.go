// Package conversation holds the client-side state of one chat conversation:
// the ordered message list, the backend session identifier and the current
// interaction phase.
//
// Every mutation produces a new Snapshot. Snapshots are values; the message
// slice they carry is copied on write and never modified after it has been
// handed out, so a renderer can hold on to a Snapshot while the stream
// consumer keeps mutating the Store.
package conversation

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation.
type Message struct {
	// ID is stable for the lifetime of the message and unique within a Store.
	ID string

	Role Role

	// Content grows while Streaming is true and is frozen afterwards.
	Content string

	// Streaming is true for at most one message: the assistant reply that is
	// currently receiving chunks.
	Streaming bool
}

// Phase is the client-local interaction state gating new submissions.
type Phase int

const (
	// PhaseIdle accepts a new submission.
	PhaseIdle Phase = iota

	// PhaseSending means the request is out and no response has arrived.
	PhaseSending

	// PhaseStreaming means the response is being read.
	PhaseStreaming

	// PhaseError is published once when a turn fails, immediately followed
	// by PhaseIdle.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the Store at one point in time.
type Snapshot struct {
	Messages  []Message
	SessionID string
	Phase     Phase

	// Err is the failure of the most recent turn, nil once a turn succeeds.
	Err error
}

// Busy reports whether a request is in flight.
func (s Snapshot) Busy() bool {
	return s.Phase == PhaseSending || s.Phase == PhaseStreaming
}

// Streaming returns the message currently receiving chunks, if any.
func (s Snapshot) Streaming() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Streaming {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Find returns the message with the given id.
func (s Snapshot) Find(id string) (Message, bool) {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}
