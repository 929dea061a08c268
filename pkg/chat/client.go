// Package chat drives a conversation against a streaming chat backend.
//
// A Client submits user input, reads the server-sent-event response
// incrementally and reflects every event into a conversation.Store.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/sse"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const (
	// DefaultTimeout bounds a whole chat turn, headers and body included.
	DefaultTimeout = 5 * time.Minute

	chatPath   = "chat"
	healthPath = "health"

	healthyStatus = "healthy"

	// maxErrorBody caps how much of a failed response is kept in
	// RequestFailedError.
	maxErrorBody = 512

	maxLoggedLine = 200
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend prefix, e.g. "http://localhost:8000/api". The
	// chat endpoint is BaseURL + "/chat" and the health endpoint BaseURL +
	// "/health".
	BaseURL string

	// HTTPClient is used for every request. When nil a client with Timeout
	// is created.
	HTTPClient *http.Client

	// Timeout applies only when HTTPClient is nil. Zero disables it.
	Timeout time.Duration

	// Logger defaults to logger.Nop().
	Logger *slog.Logger

	// Record, when set, receives a verbatim copy of every response body
	// byte read from the chat endpoint.
	Record io.Writer
}

// Client submits turns for one conversation.
type Client struct {
	store      *conversation.Store
	chatURL    string
	healthURL  string
	httpClient *http.Client
	logger     *slog.Logger
	record     io.Writer
}

type chatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// New returns a Client that records the conversation in store.
func New(store *conversation.Store, cfg Config) (*Client, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		store:      store,
		chatURL:    base.JoinPath(chatPath).String(),
		healthURL:  base.JoinPath(healthPath).String(),
		httpClient: httpClient,
		logger:     log,
		record:     cfg.Record,
	}, nil
}

// Store returns the conversation this client writes to.
func (c *Client) Store() *conversation.Store {
	return c.store
}

// Submit sends input as the next user turn and streams the reply into the
// Store. It returns once the turn has ended, with the phase back to idle.
//
// Blank input, or input submitted while another turn is in flight, is
// ignored and Submit returns nil. A failed turn leaves the partial reply in
// place, appends FailureNotice and returns the cause. When ctx is cancelled
// the partial reply is kept, no notice is added and ctx's error is returned.
func (c *Client) Submit(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil
	}

	if _, ok := c.store.BeginTurn(text); !ok {
		c.logger.Debug("submission ignored, a turn is in flight")
		return nil
	}

	return c.turn(ctx, text)
}

func (c *Client) turn(ctx context.Context, text string) error {
	payload := chatRequest{Message: text}
	if sid := c.store.SessionID(); sid != "" {
		payload.SessionID = &sid
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return c.fail(ctx, "", fmt.Errorf("could not encode chat request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return c.fail(ctx, "", fmt.Errorf("could not create chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("sending chat request",
		"url", c.chatURL,
		"session_id", c.store.SessionID(),
		"message_len", len(text),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(ctx, "", &TransportError{Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.fail(ctx, "", &RequestFailedError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}

	replyID := c.store.AppendMessage(conversation.RoleAssistant, "", true)
	c.store.SetPhase(conversation.PhaseStreaming)

	if err := c.consume(resp.Body, replyID); err != nil {
		return c.fail(ctx, replyID, err)
	}

	return nil
}

// consume reads events until the turn ends. It returns nil once a done event
// has been applied.
func (c *Client) consume(body io.Reader, replyID string) error {
	tr := sse.NewTeeReader(body, c.record)

	for {
		line, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrIncompleteStream
			}
			return &TransportError{Err: err}
		}

		ev, err := sse.ParseLine(line)
		if err != nil {
			c.logger.Warn("skipping malformed event", "error", err, "line", utils.Truncate(line, maxLoggedLine))
			continue
		}

		switch e := ev.(type) {
		case nil:
			continue

		case sse.Chunk:
			c.store.AppendToMessage(replyID, e.Text)

		case sse.Done:
			c.store.SetSessionID(e.SessionID)
			c.store.FinalizeMessage(replyID)
			c.store.SetPhase(conversation.PhaseIdle)
			c.logger.Debug("chat turn complete", "session_id", e.SessionID)
			return nil

		case sse.Error:
			return &StreamError{Message: e.Message}

		case sse.Unknown:
			c.logger.Debug("ignoring unknown event", "type", e.Type)
		}
	}
}

// fail ends the current turn. replyID is the streaming placeholder, empty if
// none was created.
func (c *Client) fail(ctx context.Context, replyID string, err error) error {
	if replyID != "" {
		c.store.FinalizeMessage(replyID)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.Debug("chat turn cancelled", "error", err)
		c.store.SetPhase(conversation.PhaseIdle)
		return ctxErr
	}

	c.logger.Warn("chat turn failed", "error", err)
	c.store.AppendMessage(conversation.RoleAssistant, FailureNotice, false)
	c.store.Fail(err)
	return err
}

// Health checks that the backend is up and reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return fmt.Errorf("could not create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestFailedError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if status := gjson.GetBytes(body, "status").String(); status != healthyStatus {
		return fmt.Errorf("backend reported status %q", status)
	}

	return nil
}
