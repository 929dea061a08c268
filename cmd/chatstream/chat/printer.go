package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

const exitCommand = "/exit"

func userPrompt() string {
	return cliui.UserStyle.Render("you> ")
}

func assistantPrompt() string {
	return cliui.AssistantStyle.Render("assistant> ")
}

// transcriptPrinter turns snapshots into an append-only transcript. Every
// call writes only what changed since the previous snapshot, so streamed
// chunks appear as they arrive.
type transcriptPrinter struct {
	mu sync.Mutex
	w  io.Writer

	// echoUser prints user messages. A terminal has already echoed them.
	echoUser bool

	written map[string]int
	closed  map[string]bool
	phase   conversation.Phase
}

func newTranscriptPrinter(w io.Writer, echoUser bool) *transcriptPrinter {
	return &transcriptPrinter{
		w:        w,
		echoUser: echoUser,
		written:  map[string]int{},
		closed:   map[string]bool{},
	}
}

// Render is a conversation.Store subscriber.
func (p *transcriptPrinter) Render(snap conversation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, msg := range snap.Messages {
		if p.closed[msg.ID] {
			continue
		}
		if msg.Role == conversation.RoleUser && !p.echoUser {
			p.closed[msg.ID] = true
			continue
		}

		n, started := p.written[msg.ID]
		if !started {
			fmt.Fprint(p.w, promptFor(msg.Role))
		}
		if len(msg.Content) > n {
			fmt.Fprint(p.w, styleContent(msg, msg.Content[n:]))
			p.written[msg.ID] = len(msg.Content)
		} else if !started {
			p.written[msg.ID] = 0
		}

		if !msg.Streaming {
			p.closed[msg.ID] = true
			fmt.Fprintln(p.w)
			if msg.Role == conversation.RoleAssistant {
				fmt.Fprintln(p.w)
			}
		}
	}

	if snap.Phase == conversation.PhaseError && p.phase != conversation.PhaseError && snap.Err != nil {
		fmt.Fprintf(p.w, "  %s %s\n\n", cliui.FailMark, cliui.DimStyle.Render(snap.Err.Error()))
	}
	p.phase = snap.Phase
}

func promptFor(role conversation.Role) string {
	if role == conversation.RoleUser {
		return userPrompt()
	}
	return assistantPrompt()
}

func styleContent(msg conversation.Message, text string) string {
	if msg.Role == conversation.RoleAssistant && !msg.Streaming && msg.Content == chat.FailureNotice {
		return cliui.ErrorStyle.Render(text)
	}
	return text
}

// runLines reads one submission per line from in until EOF, /exit or ctx is
// done. With interactive set a prompt is shown before each read.
func runLines(ctx context.Context, client *chat.Client, in io.Reader, out io.Writer, interactive bool) error {
	printer := newTranscriptPrinter(out, !interactive)
	printer.Render(client.Store().Snapshot())
	unsubscribe := client.Store().Subscribe(printer.Render)
	defer unsubscribe()

	if interactive {
		fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))
	}

	lines, scanErr := scanLines(ctx, in)

	for {
		if interactive {
			fmt.Fprint(out, userPrompt())
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if interactive {
				fmt.Fprintln(out)
			}
			if err := <-scanErr; err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		}

		input := strings.TrimSpace(line)
		if input == exitCommand {
			return nil
		}

		// Failures are already in the transcript as a notice.
		if err := client.Submit(ctx, input); err != nil && ctx.Err() != nil {
			fmt.Fprintln(out)
			return nil
		}
	}
}

// scanLines feeds lines from r to the returned channel until EOF or ctx is
// done. The error channel receives the scanner's final error once lines is
// closed.
func scanLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errs <- nil
				return
			}
		}
		errs <- scanner.Err()
	}()

	return lines, errs
}
