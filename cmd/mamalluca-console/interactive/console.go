// Package interactive provides the interactive command-line interface
// for mamalluca-console.
package interactive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/mamalluca/mamalluca-go/pkg/connection"
	"github.com/mamalluca/mamalluca-go/pkg/interaction"
	"github.com/mamalluca/mamalluca-go/pkg/transport"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// DefaultCallTimeout bounds each call issued from the prompt.
const DefaultCallTimeout = 10 * time.Second

// Session is the part of transport.Session the console uses.
type Session interface {
	interaction.Caller
	Events() <-chan transport.Event
	Endpoint() string
	State() connection.State
	Pending() int
	RTT() time.Duration
}

// Console is a readline prompt over a Moonraker session.
type Console struct {
	session Session
	client  *interaction.Client
	rl      *readline.Instance

	// CallTimeout bounds each call (default: DefaultCallTimeout).
	CallTimeout time.Duration

	outMu sync.Mutex
	out   io.Writer

	watch  atomic.Bool
	filter atomic.Value // string method filter, "" for all
}

// New creates a console with a readline prompt on the terminal.
func New(session Session) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "moonraker> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(session, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(session Session, out io.Writer) *Console {
	c := &Console{
		session:     session,
		client:      interaction.NewClient(session),
		CallTimeout: DefaultCallTimeout,
		out:         out,
	}
	c.filter.Store("")
	c.watch.Store(true)
	return c
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("call",
			readline.PcItem(wire.MethodPrinterInfo),
			readline.PcItem(wire.MethodServerInfo),
			readline.PcItem(wire.MethodObjectsList),
			readline.PcItem(wire.MethodObjectsQuery),
			readline.PcItem(wire.MethodObjectsSubscribe),
		),
		readline.PcItem("info"),
		readline.PcItem("server"),
		readline.PcItem("objects"),
		readline.PcItem("query"),
		readline.PcItem("subscribe"),
		readline.PcItem("watch", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that coordinates with the readline input.
func (c *Console) Stdout() io.Writer {
	return c.out
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Run starts the interactive command loop and the event printer. It
// returns when the user quits or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	if c.rl == nil {
		return
	}
	defer c.rl.Close()

	go c.WatchEvents(ctx)

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			c.printf("Exiting...\n")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// WatchEvents prints session events until ctx is done or the session
// closes. Notifications are printed while watching is on.
func (c *Console) WatchEvents(ctx context.Context) {
	events := c.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.printEvent(ev)
		}
	}
}

func (c *Console) printEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnected:
		c.printf("[connected] %s (%s)\n", c.session.Endpoint(), ev.ConnectionID)
	case transport.EventDisconnected:
		if ev.Err != nil {
			c.printf("[disconnected] %v\n", ev.Err)
		} else {
			c.printf("[disconnected]\n")
		}
	case transport.EventNotification:
		if !c.watch.Load() {
			return
		}
		n := ev.Notification
		if f := c.filter.Load().(string); f != "" && f != n.Method {
			return
		}
		c.printf("[%s] %s\n", n.Method, compact(n.Params))
	}
}

// Execute runs one command line. It returns false when the console should
// exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()

	case "call", "c":
		c.cmdCall(ctx, rest)

	case "info":
		c.cmdInfo(ctx)

	case "server":
		c.cmdRaw(ctx, wire.MethodServerInfo, nil)

	case "objects", "ls":
		c.cmdObjects(ctx)

	case "query":
		c.cmdStatus(ctx, wire.MethodObjectsQuery, args)

	case "subscribe", "sub":
		c.cmdStatus(ctx, wire.MethodObjectsSubscribe, args)

	case "watch", "w":
		c.cmdWatch(args)

	case "status":
		c.cmdSessionStatus()

	case "quit", "exit", "q":
		c.printf("Exiting...\n")
		return false

	default:
		c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	c.printf(`
Moonraker Console Commands:
  Calls:
    call <method> [json-params]  - Issue any JSON-RPC call
    info                         - printer.info
    server                       - server.info
    objects                      - List printer objects
    query <object>...            - Query objects once
    subscribe <object>...        - Subscribe to objects (replaces subscription)

  Notifications:
    watch on|off                 - Print notifications (default on)
    watch <method>               - Print only this notification method

  General:
    status                       - Show session status
    help                         - Show this help
    quit                         - Exit console
`)
}

func (c *Console) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// cmdCall handles "call <method> [json-params]".
func (c *Console) cmdCall(ctx context.Context, rest string) {
	method, paramText, _ := strings.Cut(rest, " ")
	if method == "" {
		c.printf("Usage: call <method> [json-params]\n")
		return
	}

	var params any
	if paramText = strings.TrimSpace(paramText); paramText != "" {
		raw := json.RawMessage(paramText)
		if !json.Valid(raw) {
			c.printf("Invalid JSON params: %s\n", paramText)
			return
		}
		params = raw
	}
	c.cmdRaw(ctx, method, params)
}

func (c *Console) cmdRaw(ctx context.Context, method string, params any) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := c.session.Call(callCtx, method, params)
	if err != nil {
		c.printError(method, err)
		return
	}
	c.printf("%s (%s)\n%s\n", method, time.Since(start).Round(time.Microsecond), indent(result))
}

func (c *Console) printError(method string, err error) {
	var remote *wire.RemoteError
	switch {
	case errors.As(err, &remote):
		c.printf("%s failed: code %d: %s\n", method, remote.Code, remote.Message)
	case errors.Is(err, transport.ErrNotConnected):
		c.printf("%s failed: not connected\n", method)
	default:
		c.printf("%s failed: %v\n", method, err)
	}
}

func (c *Console) cmdInfo(ctx context.Context) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	info, err := c.client.PrinterInfo(callCtx)
	if err != nil {
		c.printError(wire.MethodPrinterInfo, err)
		return
	}
	c.printf("\nPrinter:\n")
	c.printf("-------------------------------------------\n")
	c.printf("  State:    %s\n", info.State)
	if info.StateMessage != "" {
		c.printf("  Message:  %s\n", strings.TrimSpace(info.StateMessage))
	}
	c.printf("  Host:     %s\n", info.Hostname)
	c.printf("  Version:  %s\n", info.SoftwareVersion)
}

func (c *Console) cmdObjects(ctx context.Context) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	objects, err := c.client.ListObjects(callCtx)
	if err != nil {
		c.printError(wire.MethodObjectsList, err)
		return
	}
	sorted := append([]string(nil), objects...)
	sort.Strings(sorted)

	c.printf("\nPrinter Objects (%d):\n", len(sorted))
	for _, o := range sorted {
		c.printf("  %s\n", o)
	}
}

func (c *Console) cmdStatus(ctx context.Context, method string, topics []string) {
	if len(topics) == 0 {
		c.printf("Usage: %s <object>...\n", strings.TrimPrefix(method, "printer.objects."))
		return
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var (
		result *interaction.StatusResult
		err    error
	)
	if method == wire.MethodObjectsSubscribe {
		result, err = c.client.Subscribe(callCtx, topics)
	} else {
		result, err = c.client.Query(callCtx, topics)
	}
	if err != nil {
		c.printError(method, err)
		return
	}

	names := make([]string, 0, len(result.Status))
	for name := range result.Status {
		names = append(names, name)
	}
	sort.Strings(names)

	c.printf("eventtime %.3f\n", result.EventTime)
	for _, name := range names {
		c.printf("%s:\n%s\n", name, indent(result.Status[name]))
	}
}

func (c *Console) cmdWatch(args []string) {
	if len(args) == 0 {
		state := "off"
		if c.watch.Load() {
			state = "on"
		}
		if f := c.filter.Load().(string); f != "" {
			state += " (" + f + ")"
		}
		c.printf("Watching: %s\n", state)
		return
	}

	switch strings.ToLower(args[0]) {
	case "on":
		c.watch.Store(true)
		c.filter.Store("")
	case "off":
		c.watch.Store(false)
	default:
		c.watch.Store(true)
		c.filter.Store(args[0])
	}
	c.cmdWatch(nil)
}

func (c *Console) cmdSessionStatus() {
	c.printf("\nSession:\n")
	c.printf("-------------------------------------------\n")
	c.printf("  Endpoint: %s\n", c.session.Endpoint())
	c.printf("  State:    %s\n", c.session.State())
	c.printf("  Pending:  %d\n", c.session.Pending())
	if rtt := c.session.RTT(); rtt > 0 {
		c.printf("  RTT:      %s\n", rtt.Round(time.Microsecond))
	}
}

func indent(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "  ", "  "); err != nil {
		return "  " + string(raw)
	}
	return "  " + buf.String()
}

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
