package backend

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/chatstream/pkg/logger"
)

// Server is the development chat backend.
type Server struct {
	config    Config
	responder Responder
	logger    *slog.Logger
	app       *fiber.App

	// ctx is cancelled by Shutdown and stops replies still being streamed.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new backend server. A nil logger discards all output.
func NewServer(config Config, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	responder := config.Responder
	if responder == nil {
		responder = NewEchoResponder()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		responder: responder,
		logger:    log,
		app:       app,
		ctx:       ctx,
		cancel:    cancel,
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/chat", s.handleChat)

	return s
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting chat backend",
		"listen", s.config.ListenAddr,
		"chunk_delay", s.config.ChunkDelay,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting chat backend",
		"listen", listener.Addr().String(),
		"chunk_delay", s.config.ChunkDelay,
	)
	return s.app.Listener(listener)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

// Handler exposes the server as a net/http handler. Responses are buffered
// in full before they are written, so it suits tests rather than live
// streaming.
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}
