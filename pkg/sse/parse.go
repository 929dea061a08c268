package sse

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// DataPrefix starts every line that carries an event.
const DataPrefix = "data: "

// ParseLine decodes one complete line. It returns nil, nil for lines that
// carry no event and a *MalformedEventError when the payload cannot be
// decoded.
func ParseLine(line string) (Event, error) {
	payload, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return nil, nil
	}

	ev, err := ParsePayload(payload)
	if err != nil {
		var malformed *MalformedEventError
		if errors.As(err, &malformed) {
			malformed.Line = line
		}
		return nil, err
	}

	return ev, nil
}

// ParsePayload decodes the JSON payload of a data line.
func ParsePayload(payload string) (Event, error) {
	if !gjson.Valid(payload) {
		return nil, &MalformedEventError{Line: payload, Reason: "payload is not valid JSON"}
	}

	res := gjson.Parse(payload)
	if !res.IsObject() {
		return nil, &MalformedEventError{Line: payload, Reason: "payload is not a JSON object"}
	}

	typ := res.Get("type")
	if typ.Type != gjson.String {
		return nil, &MalformedEventError{Line: payload, Reason: "missing string field \"type\""}
	}

	switch Kind(typ.String()) {
	case KindChunk:
		text := res.Get("text")
		if text.Type != gjson.String {
			return nil, &MalformedEventError{Line: payload, Reason: "chunk event without string field \"text\""}
		}
		return Chunk{Text: text.String()}, nil

	case KindDone:
		// A missing or null session id is accepted and clears the session.
		sid := res.Get("session_id")
		switch sid.Type {
		case gjson.String:
			return Done{SessionID: sid.String()}, nil
		case gjson.Null:
			return Done{}, nil
		default:
			return nil, &MalformedEventError{Line: payload, Reason: "done event with non-string field \"session_id\""}
		}

	case KindError:
		// Whatever the message looks like, an error event still ends the
		// stream.
		return Error{Message: res.Get("message").String()}, nil

	default:
		return Unknown{Type: typ.String(), Payload: payload}, nil
	}
}
