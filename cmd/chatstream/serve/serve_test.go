package servecmder

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the server flags with config defaults", func() {
		cmd := NewServeCmd()

		listen := cmd.Flags().Lookup("listen")
		Expect(listen).NotTo(BeNil())
		Expect(listen.Shorthand).To(Equal("l"))
		Expect(listen.DefValue).To(Equal(":8000"))

		delay := cmd.Flags().Lookup("chunk-delay")
		Expect(delay).NotTo(BeNil())
		Expect(delay.DefValue).To(Equal("40ms"))

		Expect(cmd.Flags().Lookup("log-file")).NotTo(BeNil())
	})

	It("resolves flags over config values in PreRunE", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"),
			[]byte("[server]\nlisten = \":7000\"\nchunk_delay = \"5ms\"\n"), 0o600)).To(Succeed())

		cmder := &serveCommander{}
		cmd := newServeCmd(cmder)
		cmd.Flags().String("config-dir", "", "")
		Expect(cmd.ParseFlags([]string{"--config-dir", dir, "--chunk-delay", "1ms"})).To(Succeed())
		Expect(cmd.PreRunE(cmd, nil)).To(Succeed())

		Expect(cmder.listen).To(Equal(":7000"))
		Expect(cmder.chunkDelay).To(Equal(time.Millisecond))
	})

	It("rejects a negative chunk delay", func() {
		cmder := &serveCommander{}
		cmd := newServeCmd(cmder)
		cmd.Flags().String("config-dir", "", "")
		Expect(cmd.ParseFlags([]string{"--config-dir", GinkgoT().TempDir(), "--chunk-delay=-1s"})).To(Succeed())
		Expect(cmd.PreRunE(cmd, nil)).To(MatchError(ContainSubstring("server.chunk_delay")))
	})
})

var _ = Describe("serveCommander", func() {
	var (
		cmder    *serveCommander
		listener net.Listener
		ctx      context.Context
		cancel   context.CancelFunc
		errChan  chan error
	)

	BeforeEach(func() {
		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		cmder = &serveCommander{chunkDelay: time.Millisecond}
		ctx, cancel = context.WithCancel(context.Background())
		errChan = make(chan error, 1)
		DeferCleanup(func() { cancel() })
	})

	start := func() {
		go func() {
			defer GinkgoRecover()
			errChan <- cmder.run(ctx, listener)
		}()
	}

	baseURL := func() string {
		return "http://" + listener.Addr().String() + "/api"
	}

	It("serves chat turns until the context is cancelled", func() {
		start()

		client, err := chat.New(conversation.NewStore(), chat.Config{BaseURL: baseURL()})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() error {
			return client.Health(context.Background())
		}).WithTimeout(5 * time.Second).Should(Succeed())

		Expect(client.Submit(context.Background(), "hello there")).To(Succeed())
		msgs := client.Store().Snapshot().Messages
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Content).To(Equal("You said: hello there (message 1 in this session)"))

		cancel()
		Eventually(errChan).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
	})

	It("writes JSON logs to --log-file", func() {
		cmder.logFile = filepath.Join(GinkgoT().TempDir(), "backend.log")
		start()

		client, err := chat.New(conversation.NewStore(), chat.Config{BaseURL: baseURL()})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() error {
			return client.Health(context.Background())
		}).WithTimeout(5 * time.Second).Should(Succeed())

		cancel()
		Eventually(errChan).WithTimeout(5 * time.Second).Should(Receive(BeNil()))

		data, err := os.ReadFile(cmder.logFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"starting chat backend"`))
	})

	It("fails when the log file cannot be opened", func() {
		cmder.logFile = filepath.Join(GinkgoT().TempDir(), "missing", "backend.log")
		err := cmder.run(ctx, listener)
		Expect(err).To(MatchError(ContainSubstring("opening log file")))
		_ = listener.Close()
	})
})
