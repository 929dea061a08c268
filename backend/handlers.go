package backend

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/sse"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// ErrorResponse is the body of every non-streaming error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "healthy"})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "message is required"})
	}

	sessionID := ""
	if req.SessionID != nil {
		sessionID = *req.SessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.logger.Debug("chat request",
		"session_id", sessionID,
		"message_len", len(message),
	)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// fasthttp recycles the request context once the handler returns, so the
	// reply is produced on its own goroutine and piped into the body stream.
	pr, pw := io.Pipe()
	go s.streamReply(pw, sessionID, message)

	// Unknown size (-1) selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamReply writes one event per reply fragment and ends with done, or
// with an error event when the responder fails.
func (s *Server) streamReply(pw *io.PipeWriter, sessionID, message string) {
	defer pw.Close()

	ctx := s.ctx
	start := time.Now()
	chunks := 0
	emit := func(text string) error {
		if chunks > 0 && s.config.ChunkDelay > 0 {
			select {
			case <-time.After(s.config.ChunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		chunks++
		return sse.WriteEvent(pw, sse.Chunk{Text: text})
	}

	err := s.responder.Respond(ctx, sessionID, message, emit)
	switch {
	case errors.Is(err, io.ErrClosedPipe):
		s.logger.Debug("client went away", "session_id", sessionID, "chunks", chunks)
		return
	case err != nil:
		s.logger.Error("responder failed", "session_id", sessionID, "error", err)
		if werr := sse.WriteEvent(pw, sse.Error{Message: err.Error()}); werr != nil {
			s.logger.Debug("could not report responder failure", "error", werr)
		}
		return
	}

	if err := sse.WriteEvent(pw, sse.Done{SessionID: sessionID}); err != nil {
		s.logger.Debug("could not finish stream", "session_id", sessionID, "error", err)
		return
	}

	s.logger.Debug("chat reply streamed",
		"session_id", sessionID,
		"chunks", chunks,
		"duration", time.Since(start),
	)
}
