package chat_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/sse"
)

type requestLog struct {
	mu           sync.Mutex
	bodies       []string
	contentTypes []string
	paths        []string
}

func (l *requestLog) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, string(body))
		l.contentTypes = append(l.contentTypes, r.Header.Get("Content-Type"))
		l.paths = append(l.paths, r.URL.Path)
		l.mu.Unlock()
		next(w, r)
	}
}

func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bodies)
}

// stream writes each frame and flushes after it, so every frame arrives in
// its own read on the client side.
func stream(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			w.(http.Flusher).Flush()
		}
	}
}

func phasesOf(store *conversation.Store) func() []conversation.Phase {
	var phases []conversation.Phase
	store.Subscribe(func(s conversation.Snapshot) {
		phases = append(phases, s.Phase)
	})
	return func() []conversation.Phase {
		return slices.Compact(slices.Clone(phases))
	}
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		store  *conversation.Store
		log    *requestLog
		server *httptest.Server
		client *chat.Client
	)

	serve := func(h http.HandlerFunc) {
		server = httptest.NewServer(log.wrap(h))
		var err error
		client, err = chat.New(store, chat.Config{BaseURL: server.URL + "/api"})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = conversation.NewStore(conversation.WithIDSource(conversation.CounterSource("m")))
		log = &requestLog{}
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("New", func() {
		It("requires a store", func() {
			_, err := chat.New(nil, chat.Config{BaseURL: "http://localhost:8000/api"})
			Expect(err).To(HaveOccurred())
		})

		DescribeTable("rejects invalid base urls",
			func(base string) {
				_, err := chat.New(store, chat.Config{BaseURL: base})
				Expect(err).To(MatchError(ContainSubstring("invalid base url")))
			},
			Entry("empty", ""),
			Entry("no scheme", "localhost:8000/api"),
			Entry("unsupported scheme", "ftp://localhost/api"),
			Entry("no host", "http:///api"),
		)

		It("exposes its store", func() {
			c, err := chat.New(store, chat.Config{BaseURL: "http://localhost:8000/api"})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Store()).To(BeIdenticalTo(store))
		})
	})

	Describe("Submit", func() {
		Context("when the backend streams a full reply", func() {
			BeforeEach(func() {
				serve(stream(
					`data: {"type":"chunk","text":"Let me "}`+"\n\n",
					`data: {"type":"chunk","text":"check."}`+"\n\n",
					`data: {"type":"done","session_id":"s1"}`+"\n\n",
				))
			})

			It("records the turn in the store", func() {
				phases := phasesOf(store)

				Expect(client.Submit(ctx, "Where is my order?")).To(Succeed())

				snap := store.Snapshot()
				Expect(snap.Messages).To(Equal([]conversation.Message{
					{ID: "m1", Role: conversation.RoleUser, Content: "Where is my order?"},
					{ID: "m2", Role: conversation.RoleAssistant, Content: "Let me check."},
				}))
				Expect(snap.SessionID).To(Equal("s1"))
				Expect(snap.Phase).To(Equal(conversation.PhaseIdle))
				Expect(snap.Err).NotTo(HaveOccurred())
				Expect(phases()).To(Equal([]conversation.Phase{
					conversation.PhaseSending,
					conversation.PhaseStreaming,
					conversation.PhaseIdle,
				}))
			})

			It("posts JSON with a null session id on the first turn", func() {
				Expect(client.Submit(ctx, "Where is my order?")).To(Succeed())

				Expect(log.paths).To(Equal([]string{"/api/chat"}))
				Expect(log.contentTypes).To(Equal([]string{"application/json"}))
				Expect(log.bodies[0]).To(MatchJSON(`{"message":"Where is my order?","session_id":null}`))
			})

			It("trims the input", func() {
				Expect(client.Submit(ctx, "  hello \n")).To(Succeed())

				Expect(store.Snapshot().Messages[0].Content).To(Equal("hello"))
				Expect(log.bodies[0]).To(MatchJSON(`{"message":"hello","session_id":null}`))
			})

			It("keeps the greeting ahead of the turn", func() {
				store = conversation.NewStore(
					conversation.WithIDSource(conversation.CounterSource("g")),
					conversation.WithGreeting("Hello!"),
				)
				c, err := chat.New(store, chat.Config{BaseURL: server.URL + "/api"})
				Expect(err).NotTo(HaveOccurred())

				Expect(c.Submit(ctx, "hi")).To(Succeed())

				msgs := store.Snapshot().Messages
				Expect(msgs).To(HaveLen(3))
				Expect(msgs[0].Content).To(Equal("Hello!"))
				Expect(msgs[2].Content).To(Equal("Let me check."))
			})
		})

		It("sends the session id from the previous turn", func() {
			serve(stream(`data: {"type":"done","session_id":"abc123"}` + "\n\n"))

			Expect(client.Submit(ctx, "first")).To(Succeed())
			Expect(client.Submit(ctx, "second")).To(Succeed())

			Expect(log.bodies).To(HaveLen(2))
			Expect(log.bodies[1]).To(MatchJSON(`{"message":"second","session_id":"abc123"}`))
		})

		It("completes a turn when done has no session id", func() {
			serve(stream(
				`data: {"type":"chunk","text":"hi"}`+"\n\n",
				`data: {"type":"done"}`+"\n\n",
			))

			Expect(client.Submit(ctx, "hello")).To(Succeed())

			snap := store.Snapshot()
			Expect(snap.Messages).To(Equal([]conversation.Message{
				{ID: "m1", Role: conversation.RoleUser, Content: "hello"},
				{ID: "m2", Role: conversation.RoleAssistant, Content: "hi"},
			}))
			Expect(snap.SessionID).To(BeEmpty())
			Expect(snap.Phase).To(Equal(conversation.PhaseIdle))
			Expect(snap.Err).NotTo(HaveOccurred())

			Expect(client.Submit(ctx, "again")).To(Succeed())
			Expect(log.bodies[1]).To(MatchJSON(`{"message":"again","session_id":null}`))
		})

		It("reassembles characters split across reads", func() {
			line := `data: {"type":"chunk","text":"héllo ⛰"}` + "\n"
			cut := strings.Index(line, "é") + 1
			serve(stream(
				line[:cut],
				line[cut:],
				`data: {"type":"done","session_id":"s"}`+"\n",
			))

			Expect(client.Submit(ctx, "hi")).To(Succeed())
			Expect(store.Snapshot().Messages[1].Content).To(Equal("héllo ⛰"))
		})

		It("carries a partial line over to the next read", func() {
			serve(stream(
				`data: {"type":"chunk","te`,
				`xt":"joined"}`+"\n",
				`data: {"type":"done","session_id":"s"}`,
				"\n",
			))

			Expect(client.Submit(ctx, "hi")).To(Succeed())
			Expect(store.Snapshot().Messages[1].Content).To(Equal("joined"))
		})

		It("skips malformed and unknown events", func() {
			serve(stream(
				`data: {"type":"chunk","text":"a"}`+"\n",
				": keep-alive\n",
				"data: not json\n",
				`data: {"type":"chunk"}`+"\n",
				`data: {"type":"tool_call","name":"lookup"}`+"\n",
				`data: {"type":"chunk","text":"b"}`+"\n",
				`data: {"type":"done","session_id":"s"}`+"\n",
			))

			Expect(client.Submit(ctx, "hi")).To(Succeed())
			Expect(store.Snapshot().Messages[1].Content).To(Equal("ab"))
		})

		It("stops reading at the done event", func() {
			serve(stream(
				`data: {"type":"chunk","text":"kept"}`+"\n",
				`data: {"type":"done","session_id":"s"}`+"\n",
				`data: {"type":"chunk","text":" ignored"}`+"\n",
			))

			Expect(client.Submit(ctx, "hi")).To(Succeed())
			Expect(store.Snapshot().Messages).To(HaveLen(2))
			Expect(store.Snapshot().Messages[1].Content).To(Equal("kept"))
		})

		It("writes the raw response to the recorder", func() {
			raw := `data: {"type":"chunk","text":"x"}` + "\r\n\r\n" +
				"data: not json\n\n" +
				`data: {"type":"done","session_id":"s"}` + "\n"
			server = httptest.NewServer(stream(raw))

			var rec bytes.Buffer
			c, err := chat.New(store, chat.Config{BaseURL: server.URL + "/api", Record: &rec})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.Submit(ctx, "hi")).To(Succeed())
			Expect(rec.String()).To(Equal(raw))
		})

		Context("when the stream ends without done", func() {
			BeforeEach(func() {
				serve(stream(`data: {"type":"chunk","text":"partial"}` + "\n\n"))
			})

			It("finalizes the partial reply and appends the failure notice", func() {
				phases := phasesOf(store)

				err := client.Submit(ctx, "hi")
				Expect(err).To(MatchError(chat.ErrIncompleteStream))

				snap := store.Snapshot()
				Expect(snap.Messages).To(Equal([]conversation.Message{
					{ID: "m1", Role: conversation.RoleUser, Content: "hi"},
					{ID: "m2", Role: conversation.RoleAssistant, Content: "partial"},
					{ID: "m3", Role: conversation.RoleAssistant, Content: chat.FailureNotice},
				}))
				Expect(snap.Phase).To(Equal(conversation.PhaseIdle))
				Expect(snap.Err).To(MatchError(chat.ErrIncompleteStream))
				Expect(snap.SessionID).To(BeEmpty())
				Expect(phases()).To(Equal([]conversation.Phase{
					conversation.PhaseSending,
					conversation.PhaseStreaming,
					conversation.PhaseError,
					conversation.PhaseIdle,
				}))
			})

			It("accepts the next submission", func() {
				Expect(client.Submit(ctx, "hi")).NotTo(Succeed())
				Expect(client.Submit(ctx, "again")).NotTo(Succeed())
				Expect(log.count()).To(Equal(2))
			})
		})

		It("fails without a placeholder on a non-2xx status", func() {
			serve(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "internal failure", http.StatusInternalServerError)
			})
			phases := phasesOf(store)

			err := client.Submit(ctx, "hi")
			Expect(err).To(MatchError(chat.ErrRequestFailed))

			var reqErr *chat.RequestFailedError
			Expect(errors.As(err, &reqErr)).To(BeTrue())
			Expect(reqErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(reqErr.Body).To(Equal("internal failure"))

			snap := store.Snapshot()
			Expect(snap.Messages).To(Equal([]conversation.Message{
				{ID: "m1", Role: conversation.RoleUser, Content: "hi"},
				{ID: "m2", Role: conversation.RoleAssistant, Content: chat.FailureNotice},
			}))
			Expect(snap.Phase).To(Equal(conversation.PhaseIdle))
			Expect(phases()).To(Equal([]conversation.Phase{
				conversation.PhaseSending,
				conversation.PhaseError,
				conversation.PhaseIdle,
			}))
		})

		It("fails on an error event", func() {
			serve(stream(
				`data: {"type":"chunk","text":"Part"}`+"\n\n",
				`data: {"type":"error","message":"agent crashed"}`+"\n\n",
				`data: {"type":"chunk","text":"never"}`+"\n\n",
			))

			err := client.Submit(ctx, "hi")
			Expect(err).To(MatchError(chat.ErrStreamError))
			Expect(err).To(MatchError(ContainSubstring("agent crashed")))

			msgs := store.Snapshot().Messages
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[1]).To(Equal(conversation.Message{ID: "m2", Role: conversation.RoleAssistant, Content: "Part"}))
			Expect(msgs[2].Content).To(Equal(chat.FailureNotice))
			Expect(store.Phase()).To(Equal(conversation.PhaseIdle))
		})

		It("fails when the connection drops mid-stream", func() {
			serve(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, `data: {"type":"chunk","text":"cut"}`+"\n\n")
				w.(http.Flusher).Flush()
				panic(http.ErrAbortHandler)
			})

			err := client.Submit(ctx, "hi")
			Expect(err).To(MatchError(chat.ErrTransport))

			msgs := store.Snapshot().Messages
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[1].Content).To(Equal("cut"))
			Expect(msgs[1].Streaming).To(BeFalse())
			Expect(msgs[2].Content).To(Equal(chat.FailureNotice))
		})

		It("fails as a transport error when a line exceeds the reader limit", func() {
			serve(stream(
				`data: {"type":"chunk","text":"start"}`+"\n",
				"data: "+strings.Repeat("x", 1024*1024+1),
			))

			err := client.Submit(ctx, "hi")
			Expect(err).To(MatchError(chat.ErrTransport))
			Expect(err).To(MatchError(sse.ErrLineTooLong))

			msgs := store.Snapshot().Messages
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[1].Content).To(Equal("start"))
			Expect(msgs[1].Streaming).To(BeFalse())
			Expect(msgs[2].Content).To(Equal(chat.FailureNotice))
			Expect(store.Phase()).To(Equal(conversation.PhaseIdle))
		})

		It("fails when the backend is unreachable", func() {
			serve(stream())
			server.Close()
			server = nil

			err := client.Submit(ctx, "hi")
			Expect(err).To(MatchError(chat.ErrTransport))

			msgs := store.Snapshot().Messages
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Content).To(Equal(chat.FailureNotice))
			Expect(store.Phase()).To(Equal(conversation.PhaseIdle))
		})

		It("ignores blank input", func() {
			serve(stream())

			Expect(client.Submit(ctx, "   \t\n")).To(Succeed())
			Expect(store.Snapshot().Messages).To(BeEmpty())
			Expect(log.count()).To(BeZero())
		})

		It("ignores input while a turn is in flight", func() {
			release := make(chan struct{})
			serve(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, `data: {"type":"chunk","text":"wait"}`+"\n\n")
				w.(http.Flusher).Flush()
				<-release
				_, _ = io.WriteString(w, `data: {"type":"done","session_id":"s"}`+"\n\n")
			})

			done := make(chan error, 1)
			go func() {
				done <- client.Submit(ctx, "first")
			}()

			Eventually(func() string {
				msg, _ := store.Snapshot().Streaming()
				return msg.Content
			}).Should(Equal("wait"))

			Expect(client.Submit(ctx, "second")).To(Succeed())
			Expect(store.Snapshot().Messages).To(HaveLen(2))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(log.count()).To(Equal(1))
			Expect(store.Phase()).To(Equal(conversation.PhaseIdle))
		})

		It("keeps the partial reply without a notice when cancelled", func() {
			serve(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, `data: {"type":"chunk","text":"partial"}`+"\n\n")
				w.(http.Flusher).Flush()
				<-r.Context().Done()
			})

			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			store.Subscribe(func(s conversation.Snapshot) {
				if msg, ok := s.Streaming(); ok && msg.Content == "partial" {
					cancel()
				}
			})

			err := client.Submit(cctx, "hi")
			Expect(err).To(MatchError(context.Canceled))

			snap := store.Snapshot()
			Expect(snap.Messages).To(Equal([]conversation.Message{
				{ID: "m1", Role: conversation.RoleUser, Content: "hi"},
				{ID: "m2", Role: conversation.RoleAssistant, Content: "partial"},
			}))
			Expect(snap.Phase).To(Equal(conversation.PhaseIdle))
			Expect(snap.Err).NotTo(HaveOccurred())
		})

		It("never leaves more than one message streaming", func() {
			serve(stream(
				`data: {"type":"chunk","text":"a"}`+"\n",
				`data: {"type":"done","session_id":"s"}`+"\n",
			))
			store.Subscribe(func(s conversation.Snapshot) {
				streaming := 0
				for _, m := range s.Messages {
					if m.Streaming {
						streaming++
					}
				}
				Expect(streaming).To(BeNumerically("<=", 1))
			})

			for range 3 {
				Expect(client.Submit(ctx, "hi")).To(Succeed())
			}
			Expect(store.Snapshot().Messages).To(HaveLen(6))
		})
	})

	Describe("Health", func() {
		It("succeeds when the backend is healthy", func() {
			serve(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"status":"healthy"}`)
			})

			Expect(client.Health(ctx)).To(Succeed())
			Expect(log.paths).To(Equal([]string{"/api/health"}))
		})

		It("fails on a non-2xx status", func() {
			serve(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			})

			Expect(client.Health(ctx)).To(MatchError(chat.ErrRequestFailed))
		})

		It("fails on an unexpected status", func() {
			serve(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"status":"degraded"}`)
			})

			Expect(client.Health(ctx)).To(MatchError(ContainSubstring("degraded")))
		})

		It("does not touch the conversation", func() {
			serve(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"status":"healthy"}`)
			})

			Expect(client.Health(ctx)).To(Succeed())
			Expect(store.Snapshot().Messages).To(BeEmpty())
		})
	})
})
