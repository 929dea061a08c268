package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

type chunkPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type donePayload struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodePayload returns the JSON payload of ev.
func EncodePayload(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Chunk:
		return json.Marshal(chunkPayload{Type: string(KindChunk), Text: e.Text})
	case Done:
		return json.Marshal(donePayload{Type: string(KindDone), SessionID: e.SessionID})
	case Error:
		return json.Marshal(errorPayload{Type: string(KindError), Message: e.Message})
	case Unknown:
		if !json.Valid([]byte(e.Payload)) {
			return nil, fmt.Errorf("unknown event %q has an invalid payload", e.Type)
		}
		return []byte(e.Payload), nil
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
}

// WriteEvent writes ev as a single "data: <json>" line followed by the blank
// line that terminates an SSE event.
func WriteEvent(w io.Writer, ev Event) error {
	payload, err := EncodePayload(ev)
	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(DataPrefix)+len(payload)+2)
	frame = append(frame, DataPrefix...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}
