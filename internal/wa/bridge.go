package wa

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/maddy52/whatsappweb/internal/infrastructure/config"
)

// Timeouts and buffer sizes for sidecar management.
const (
	// eventBufferSize bounds the lifecycle event channel. Consumers that
	// fall behind lose events; the session layer compensates by polling
	// connection state.
	eventBufferSize = 16

	// scannerBufferSize is the maximum accepted stdout line length. QR
	// payloads and media results can be large.
	scannerBufferSize = 1 << 20

	// destroyRequestTimeout bounds the polite in-protocol destroy request
	// before the process group is signalled.
	destroyRequestTimeout = 3 * time.Second
)

// Sentinel errors for the bridge.
var (
	// ErrNotRunning is returned when a request is issued while the sidecar
	// process is not running.
	ErrNotRunning = errors.New("wa: bridge not running")

	// ErrDestroyed is returned when a destroyed bridge is used again.
	ErrDestroyed = errors.New("wa: bridge destroyed")
)

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// wireRequest is an outbound request line on the sidecar's stdin.
type wireRequest struct {
	ID     string `json:"id"`
	Op     string `json:"op"`
	Params any    `json:"params,omitempty"`
}

// wireMessage is an inbound line on the sidecar's stdout: either a response
// (ID set) or an unsolicited lifecycle event (Event set).
type wireMessage struct {
	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Event  string          `json:"event,omitempty"`
	Code   string          `json:"code,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// response is the resolution of one pending request.
type response struct {
	result json.RawMessage
	err    error
}

// Bridge supervises one tenant's automation sidecar process and implements
// Client over its NDJSON stdio protocol.
//
// The sidecar is launched in its own process group so that Chromium child
// processes are signalled together on teardown.
type Bridge struct {
	cfg     config.BridgeConfig
	tenant  string
	authDir string
	logger  Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	running   bool
	destroyed bool
	procDone  chan struct{} // closed when the current process exits
	lastExit  error

	writeMu sync.Mutex // serialises stdin writes

	pendMu  sync.Mutex
	pending map[string]chan response

	eventsMu     sync.Mutex
	events       chan Event
	eventsClosed bool

	destroyOnce sync.Once
}

// NewBridge creates a bridge for one tenant. The sidecar is not launched
// until Start is called.
func NewBridge(cfg config.BridgeConfig, tenantID, authDir string) *Bridge {
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 90 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}

	return &Bridge{
		cfg:     cfg,
		tenant:  tenantID,
		authDir: authDir,
		logger:  noopLogger{},
		pending: make(map[string]chan response),
		events:  make(chan Event, eventBufferSize),
	}
}

// NewFactory returns a Factory producing bridges with the given config.
func NewFactory(cfg config.BridgeConfig, logger Logger) Factory {
	return func(tenantID, authDir string) Client {
		b := NewBridge(cfg, tenantID, authDir)
		if logger != nil {
			b.SetLogger(logger)
		}
		return b
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start launches the sidecar process and waits for its startup report.
//
// Pairing challenges and readiness arrive later on the event stream; Start
// returning nil only means the sidecar launched and began initialising the
// automation client. Start may be called again after a failure or exit.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrDestroyed
	}
	if b.running {
		b.mu.Unlock()
		return nil
	}

	args := make([]string, 0, len(b.cfg.Args)+4)
	args = append(args, b.cfg.Args...)
	args = append(args, "--tenant", b.tenant, "--auth-dir", b.authDir)

	cmd := exec.Command(b.cfg.Binary, args...) //nolint:gosec // Binary path comes from validated config
	// New process group so teardown signals the Chromium children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("starting bridge for %s: %w", b.tenant, err)
	}

	b.cmd = cmd
	b.stdin = stdin
	b.running = true
	b.lastExit = nil
	procDone := make(chan struct{})
	b.procDone = procDone
	b.mu.Unlock()

	b.logger.Info("bridge started",
		"tenant", b.tenant,
		"pid", cmd.Process.Pid,
	)

	started := make(chan error, 1)
	go b.logStderr(stderr)
	go b.readLoop(stdout, started)
	go func() {
		b.handleExit(cmd.Wait(), procDone)
	}()

	select {
	case err := <-started:
		if err != nil {
			b.terminate()
			return fmt.Errorf("bridge startup for %s: %w", b.tenant, err)
		}
		return nil
	case <-procDone:
		b.mu.Lock()
		exitErr := b.lastExit
		b.mu.Unlock()
		return fmt.Errorf("bridge for %s exited during startup: %v", b.tenant, exitErr)
	case <-ctx.Done():
		b.terminate()
		return ctx.Err()
	case <-time.After(b.cfg.StartTimeout):
		// Kill the half-started process so a retry begins clean.
		b.terminate()
		return fmt.Errorf("bridge for %s timed out starting after %v", b.tenant, b.cfg.StartTimeout)
	}
}

// Events returns the lifecycle event stream.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// State reports the sidecar's view of the connection. A stopped sidecar is
// reported as disconnected rather than an error so that pollers can treat
// the two uniformly.
func (b *Bridge) State(ctx context.Context) (ConnState, error) {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()
	if !running {
		return ConnDisconnected, nil
	}

	result, err := b.request(ctx, "state", nil)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			return ConnDisconnected, nil
		}
		return ConnDisconnected, err
	}

	var payload struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return ConnDisconnected, fmt.Errorf("decoding state: %w", err)
	}
	return connStateFromBridge(payload.State), nil
}

// connStateFromBridge maps whatsapp-web.js WAState values onto ConnState.
func connStateFromBridge(s string) ConnState {
	switch s {
	case "CONNECTED":
		return ConnConnected
	case "OPENING", "PAIRING":
		return ConnConnecting
	default:
		return ConnDisconnected
	}
}

// Send dispatches a text message and returns the network-assigned message ID.
func (b *Bridge) Send(ctx context.Context, to, text string) (string, error) {
	result, err := b.request(ctx, "send", map[string]string{
		"to":   to,
		"text": text,
	})
	if err != nil {
		return "", err
	}
	return decodeMessageID(result)
}

// SendMedia dispatches a stored media file with an optional caption.
func (b *Bridge) SendMedia(ctx context.Context, to, path, caption string) (string, error) {
	result, err := b.request(ctx, "send_media", map[string]string{
		"to":      to,
		"path":    path,
		"caption": caption,
	})
	if err != nil {
		return "", err
	}
	return decodeMessageID(result)
}

// decodeMessageID extracts the message ID from a send result.
func decodeMessageID(result json.RawMessage) (string, error) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("decoding send result: %w", err)
	}
	return payload.ID, nil
}

// IsRegistered reports whether the recipient exists on the network.
func (b *Bridge) IsRegistered(ctx context.Context, to string) (bool, error) {
	result, err := b.request(ctx, "is_registered", map[string]string{"to": to})
	if err != nil {
		return false, err
	}

	var payload struct {
		Registered bool `json:"registered"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return false, fmt.Errorf("decoding registration result: %w", err)
	}
	return payload.Registered, nil
}

// Logout invalidates the session's authentication with the network.
func (b *Bridge) Logout(ctx context.Context) error {
	_, err := b.request(ctx, "logout", nil)
	return err
}

// Destroy tears down the sidecar. It first asks the sidecar to destroy its
// automation client gracefully, then signals the process group. Destroy is
// idempotent and always closes the event stream.
func (b *Bridge) Destroy(ctx context.Context) error {
	b.destroyOnce.Do(func() {
		b.mu.Lock()
		running := b.running
		b.mu.Unlock()

		if running {
			reqCtx, cancel := context.WithTimeout(ctx, destroyRequestTimeout)
			if _, err := b.request(reqCtx, "destroy", nil); err != nil && !errors.Is(err, ErrNotRunning) {
				b.logger.Debug("bridge destroy request failed",
					"tenant", b.tenant,
					"error", err,
				)
			}
			cancel()
		}

		b.mu.Lock()
		b.destroyed = true
		b.mu.Unlock()

		b.terminate()
		b.closeEvents()
	})
	return nil
}

// request issues one correlated request on the sidecar's stdin and waits for
// its response, the sidecar's exit, or context cancellation.
func (b *Bridge) request(ctx context.Context, op string, params any) (json.RawMessage, error) {
	b.mu.Lock()
	if !b.running || b.stdin == nil {
		b.mu.Unlock()
		return nil, ErrNotRunning
	}
	stdin := b.stdin
	procDone := b.procDone
	b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan response, 1)

	b.pendMu.Lock()
	b.pending[id] = ch
	b.pendMu.Unlock()
	defer func() {
		b.pendMu.Lock()
		delete(b.pending, id)
		b.pendMu.Unlock()
	}()

	payload, err := json.Marshal(wireRequest{ID: id, Op: op, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}
	payload = append(payload, '\n')

	b.writeMu.Lock()
	_, err = stdin.Write(payload)
	b.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("writing %s request: %w", op, err)
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-procDone:
		return nil, fmt.Errorf("%w: exited mid-request", ErrNotRunning)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop parses the sidecar's stdout until the pipe closes.
func (b *Bridge) readLoop(stdout io.Reader, started chan<- error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			b.logger.Warn("bridge emitted unparseable line",
				"tenant", b.tenant,
				"error", err,
			)
			continue
		}

		switch {
		case msg.Event != "":
			b.handleEventLine(msg, started)
		case msg.ID != "":
			b.deliver(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		b.logger.Debug("bridge stdout closed", "tenant", b.tenant, "error", err)
	}
}

// handleEventLine translates a sidecar event line into a lifecycle Event.
func (b *Bridge) handleEventLine(msg wireMessage, started chan<- error) {
	switch msg.Event {
	case "started":
		select {
		case started <- nil:
		default:
		}
	case "startup_failed":
		select {
		case started <- errors.New(msg.Reason):
		default:
		}
	case "qr":
		b.emit(Event{Kind: EventQR, Code: msg.Code})
	case "authenticated":
		b.emit(Event{Kind: EventAuthenticated})
	case "ready":
		b.emit(Event{Kind: EventReady})
	case "auth_failure":
		b.emit(Event{Kind: EventAuthFailure, Reason: msg.Reason})
	case "disconnected":
		b.emit(Event{Kind: EventDisconnected, Reason: msg.Reason})
	default:
		b.logger.Debug("bridge emitted unknown event",
			"tenant", b.tenant,
			"event", msg.Event,
		)
	}
}

// deliver resolves a pending request with its response.
func (b *Bridge) deliver(msg wireMessage) {
	b.pendMu.Lock()
	ch, ok := b.pending[msg.ID]
	if ok {
		delete(b.pending, msg.ID)
	}
	b.pendMu.Unlock()

	if !ok {
		b.logger.Debug("bridge response for unknown request",
			"tenant", b.tenant,
			"id", msg.ID,
		)
		return
	}

	resp := response{result: msg.Result}
	if !msg.OK {
		resp.err = fmt.Errorf("wa: %s", msg.Error)
	}
	ch <- resp
}

// handleExit records the process exit, fails pending requests, and emits a
// disconnect event unless the bridge is being destroyed.
func (b *Bridge) handleExit(err error, procDone chan struct{}) {
	b.mu.Lock()
	b.running = false
	b.cmd = nil
	b.stdin = nil
	b.lastExit = err
	destroyed := b.destroyed
	b.mu.Unlock()

	close(procDone)
	b.failPending()

	reason := "process exited"
	if err != nil {
		reason = err.Error()
	}
	b.logger.Warn("bridge exited", "tenant", b.tenant, "error", err)

	if !destroyed {
		b.emit(Event{Kind: EventDisconnected, Reason: reason})
	}
}

// failPending resolves all outstanding requests with ErrNotRunning.
func (b *Bridge) failPending() {
	b.pendMu.Lock()
	defer b.pendMu.Unlock()
	for id, ch := range b.pending {
		delete(b.pending, id)
		ch <- response{err: fmt.Errorf("%w: exited before responding", ErrNotRunning)}
	}
}

// emit delivers an event without blocking. If the consumer has fallen
// behind the event is dropped; the session layer's connection-state poll
// covers missed transitions.
func (b *Bridge) emit(ev Event) {
	b.eventsMu.Lock()
	defer b.eventsMu.Unlock()
	if b.eventsClosed {
		return
	}
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("bridge event dropped",
			"tenant", b.tenant,
			"kind", ev.Kind,
		)
	}
}

// closeEvents closes the event stream exactly once.
func (b *Bridge) closeEvents() {
	b.eventsMu.Lock()
	defer b.eventsMu.Unlock()
	if !b.eventsClosed {
		b.eventsClosed = true
		close(b.events)
	}
}

// terminate signals the sidecar's process group: SIGTERM, then SIGKILL
// after the graceful timeout. Safe to call when no process is running.
func (b *Bridge) terminate() {
	b.mu.Lock()
	cmd := b.cmd
	procDone := b.procDone
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil || procDone == nil {
		return
	}

	pid := cmd.Process.Pid
	// Negative PID signals the whole process group (created via Setpgid).
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			b.logger.Warn("failed to send SIGTERM to bridge", "tenant", b.tenant, "error", err)
		}
	}

	select {
	case <-procDone:
		return
	case <-time.After(b.cfg.GracefulTimeout):
		b.logger.Warn("bridge graceful shutdown timeout, sending SIGKILL",
			"tenant", b.tenant,
			"timeout", b.cfg.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			b.logger.Error("failed to kill bridge process group", "tenant", b.tenant, "error", err)
		}
	}
	<-procDone
}

// logStderr forwards the sidecar's stderr to the logger line by line.
func (b *Bridge) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		b.logger.Debug("bridge stderr",
			"tenant", b.tenant,
			"line", scanner.Text(),
		)
	}
}
