package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/eventsock/pkg/cli/internal/output"
	"github.com/getmockd/eventsock/pkg/cli/internal/parse"
	"github.com/getmockd/eventsock/pkg/eventsocket"
	"github.com/getmockd/eventsock/pkg/websocket"
)

// connectFlags holds the values bound to the connect command's flags.
type connectFlags struct {
	headers []string
	send    []string
	timeout time.Duration
	wait    time.Duration
}

func newConnectCmd(root *rootOptions) *cobra.Command {
	f := &connectFlags{}

	cmd := &cobra.Command{
		Use:   "connect <url>",
		Short: "Connect to an event socket and print its status messages",
		Long: `Connect to an event socket and print every status message it pushes.

Messages given with --send are sent right after connecting. Without --send,
each line read from stdin is sent as a text message. The command exits when
the session closes, when --wait elapses, or on Ctrl+C.`,
		Example: `  # Watch the status stream
  eventsock connect ws://127.0.0.1:8080/events

  # Say goodbye right away; the server answers with 1000 "Thanks"
  eventsock connect ws://127.0.0.1:8080/events --send bye

  # Collect five seconds of status as JSON lines
  eventsock connect ws://127.0.0.1:8080/events --wait 5s --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, root, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "Request header (key:value), repeatable")
	fl.StringArrayVarP(&f.send, "send", "s", nil, "Message to send after connecting, repeatable")
	fl.DurationVarP(&f.timeout, "timeout", "t", 10*time.Second, "Handshake timeout")
	fl.DurationVarP(&f.wait, "wait", "w", 0, "Close the session after this long (0 waits until closed)")

	return cmd
}

// messageLine is the --json rendering of one received message.
type messageLine struct {
	Direction string              `json:"direction"`
	Data      string              `json:"data"`
	Status    *eventsocket.Status `json:"status,omitempty"`
	Timestamp string              `json:"timestamp"`
}

// closeLine is the --json rendering of the session's closure.
type closeLine struct {
	Direction string `json:"direction"`
	Code      int    `json:"code"`
	Reason    string `json:"reason"`
}

// printingHandler writes the session's messages to out and releases closed
// when the session ends.
type printingHandler struct {
	websocket.Adapter

	jsonOutput bool
	closed     *eventsocket.Latch

	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

func (h *printingHandler) OnText(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := eventsocket.ParseStatus(msg)
	isStatus := err == nil && st.Socket != ""

	if h.jsonOutput {
		line := messageLine{Direction: "received", Data: msg, Timestamp: time.Now().Format(time.RFC3339Nano)}
		if isStatus {
			line.Status = &st
		}
		if err := output.JSONLine(h.out, line); err != nil {
			output.Warn(h.errOut, "failed to encode output: %v", err)
		}
		return
	}

	if isStatus {
		fmt.Fprintf(h.out, "< socket=%s session=%s msg=%s\n", st.Socket, st.Session, st.Msg)
		return
	}
	fmt.Fprintf(h.out, "< %s\n", msg)
}

func (h *printingHandler) OnClose(code websocket.CloseCode, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.closed.Release()

	if h.jsonOutput {
		_ = output.JSONLine(h.out, closeLine{Direction: "closed", Code: int(code), Reason: reason})
		return
	}
	fmt.Fprintf(h.out, "closed: %d %s\n", int(code), reason)
}

func (h *printingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.errOut, "error: %v\n", err)
}

func (h *printingHandler) sent(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.jsonOutput {
		_ = output.JSONLine(h.out, messageLine{Direction: "sent", Data: msg, Timestamp: time.Now().Format(time.RFC3339Nano)})
		return
	}
	fmt.Fprintf(h.out, "> %s\n", msg)
}

func runConnect(cmd *cobra.Command, root *rootOptions, f *connectFlags, url string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	header, err := parse.Header(f.headers)
	if err != nil {
		return err
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, f.timeout)
	conn, resp, err := websocket.Dial(dialCtx, url, websocket.DialOptions{
		Header:           header,
		HandshakeTimeout: f.timeout,
	})
	cancelDial()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	h := &printingHandler{
		jsonOutput: root.jsonOutput,
		closed:     eventsocket.NewLatch(),
		out:        cmd.OutOrStdout(),
		errOut:     cmd.ErrOrStderr(),
	}
	if !root.jsonOutput {
		fmt.Fprintf(h.out, "Connected to %s\n", url)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- conn.Run(ctx, h)
	}()

	if len(f.send) > 0 {
		for _, msg := range f.send {
			h.sent(msg)
			if err := conn.SendText(ctx, msg); err != nil {
				if errors.Is(err, websocket.ErrConnectionClosed) {
					break
				}
				_ = conn.Close(websocket.CloseNormalClosure, "")
				<-runErr
				return fmt.Errorf("send: %w", err)
			}
		}
	} else {
		go pumpLines(conn, cmd.InOrStdin(), h)
	}

	var timeout <-chan time.Time
	if f.wait > 0 {
		timer := time.NewTimer(f.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-h.closed.Done():
	case <-ctx.Done():
		// Run closes the session with 1001 when ctx ends.
	case <-timeout:
		_ = conn.Close(websocket.CloseNormalClosure, "")
	}

	return <-runErr
}

// pumpLines sends each non-empty line of r until r ends or the session closes.
func pumpLines(conn *websocket.ClientConn, r io.Reader, h *printingHandler) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h.sent(line)
		if err := conn.SendText(conn.Context(), line); err != nil {
			return
		}
	}
}
