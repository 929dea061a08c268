package conversation

import (
	"slices"
	"sync"
)

// Store owns a conversation. All mutations go through it and each one
// publishes a fresh Snapshot to the subscribers, in mutation order.
//
// Subscribers run synchronously on the mutating goroutine. They may read the
// Store (Snapshot, Phase, SessionID) but must not mutate it.
type Store struct {
	// publishMu orders mutation+notification pairs so subscribers never see
	// snapshots out of order.
	publishMu sync.Mutex

	mu      sync.Mutex
	snap    Snapshot
	ids     IDSource
	subs    []subscriber
	nextSub uint64
}

type subscriber struct {
	id uint64
	fn func(Snapshot)
}

// Option configures a Store created with NewStore.
type Option func(*options)

type options struct {
	ids      IDSource
	greeting string
}

// WithIDSource overrides the message id generator. Defaults to UUIDSource.
func WithIDSource(ids IDSource) Option {
	return func(o *options) {
		o.ids = ids
	}
}

// WithGreeting seeds the conversation with a finished assistant message.
func WithGreeting(text string) Option {
	return func(o *options) {
		o.greeting = text
	}
}

// NewStore returns an idle Store with no session.
func NewStore(opts ...Option) *Store {
	o := &options{ids: UUIDSource()}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{ids: o.ids}
	if o.greeting != "" {
		s.snap.Messages = []Message{{
			ID:      s.ids(),
			Role:    RoleAssistant,
			Content: o.greeting,
		}}
	}

	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Phase returns the current interaction phase.
func (s *Store) Phase() Phase {
	return s.Snapshot().Phase
}

// SessionID returns the backend session identifier, empty until the first
// completed turn.
func (s *Store) SessionID() string {
	return s.Snapshot().SessionID
}

// Subscribe registers fn to receive every new Snapshot. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool {
			return sub.id == id
		})
	}
}

// AppendMessage appends a message with a fresh id and returns that id.
// Appending a streaming message finalizes whichever message was streaming
// before, so at most one message ever has Streaming set.
func (s *Store) AppendMessage(role Role, content string, streaming bool) string {
	var id string
	s.update(func(next *Snapshot) bool {
		id = s.ids()
		msgs := slices.Clone(next.Messages)
		if streaming {
			for i := range msgs {
				msgs[i].Streaming = false
			}
		}
		next.Messages = append(msgs, Message{
			ID:        id,
			Role:      role,
			Content:   content,
			Streaming: streaming,
		})
		return true
	})
	return id
}

// AppendToMessage concatenates fragment onto the content of message id.
// Unknown ids are ignored, and so are messages that have been finalized:
// their content is frozen.
func (s *Store) AppendToMessage(id, fragment string) {
	s.update(func(next *Snapshot) bool {
		idx := indexOf(next.Messages, id)
		if idx < 0 || !next.Messages[idx].Streaming {
			return false
		}
		msgs := slices.Clone(next.Messages)
		msgs[idx].Content += fragment
		next.Messages = msgs
		return true
	})
}

// FinalizeMessage marks message id as no longer streaming. Finalizing an
// unknown or already final message does nothing.
func (s *Store) FinalizeMessage(id string) {
	s.update(func(next *Snapshot) bool {
		idx := indexOf(next.Messages, id)
		if idx < 0 || !next.Messages[idx].Streaming {
			return false
		}
		msgs := slices.Clone(next.Messages)
		msgs[idx].Streaming = false
		next.Messages = msgs
		return true
	})
}

// SetSessionID overwrites the session identifier.
func (s *Store) SetSessionID(value string) {
	s.update(func(next *Snapshot) bool {
		next.SessionID = value
		return true
	})
}

// SetPhase moves the conversation to phase p.
func (s *Store) SetPhase(p Phase) {
	s.update(func(next *Snapshot) bool {
		if next.Phase == p {
			return false
		}
		next.Phase = p
		if p == PhaseSending {
			next.Err = nil
		}
		return true
	})
}

// BeginTurn starts a new turn if the conversation is idle: it appends the
// user message, moves to PhaseSending and returns the message id. It returns
// false, without touching the Store, when a turn is already in flight.
func (s *Store) BeginTurn(text string) (string, bool) {
	var id string
	ok := s.update(func(next *Snapshot) bool {
		if next.Phase != PhaseIdle {
			return false
		}
		id = s.ids()
		next.Messages = append(slices.Clone(next.Messages), Message{
			ID:      id,
			Role:    RoleUser,
			Content: text,
		})
		next.Phase = PhaseSending
		next.Err = nil
		return true
	})
	return id, ok
}

// Fail records err as the outcome of the current turn. Subscribers observe
// PhaseError followed by PhaseIdle.
func (s *Store) Fail(err error) {
	s.update(func(next *Snapshot) bool {
		next.Phase = PhaseError
		next.Err = err
		return true
	})
	s.SetPhase(PhaseIdle)
}

// update applies fn to a copy of the current snapshot. When fn reports a
// change the copy becomes current and is published. It returns whether a
// change happened.
func (s *Store) update(fn func(next *Snapshot) bool) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	next := s.snap
	if !fn(&next) {
		s.mu.Unlock()
		return false
	}
	s.snap = next
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
	return true
}

func indexOf(msgs []Message, id string) int {
	return slices.IndexFunc(msgs, func(m Message) bool {
		return m.ID == id
	})
}
