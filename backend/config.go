// Package backend is a development chat backend speaking the same wire
// protocol as the production agent service: POST /api/chat answers with a
// stream of server-sent events and GET /api/health reports liveness.
package backend

import "time"

// Config is the backend server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// ChunkDelay is the pause between two chunk events. Zero streams as fast
	// as the client reads.
	ChunkDelay time.Duration

	// Responder produces replies. Defaults to an EchoResponder.
	Responder Responder
}
