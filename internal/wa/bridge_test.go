package wa

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/maddy52/whatsappweb/internal/infrastructure/config"
)

func TestNewBridge_Defaults(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")

	if b.cfg.StartTimeout != 90*time.Second {
		t.Errorf("StartTimeout = %v, want 90s", b.cfg.StartTimeout)
	}
	if b.cfg.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want 10s", b.cfg.GracefulTimeout)
	}
	if b.tenant != "t1" {
		t.Errorf("tenant = %q, want %q", b.tenant, "t1")
	}
}

func TestConnStateFromBridge(t *testing.T) {
	tests := []struct {
		input string
		want  ConnState
	}{
		{"CONNECTED", ConnConnected},
		{"OPENING", ConnConnecting},
		{"PAIRING", ConnConnecting},
		{"UNPAIRED", ConnDisconnected},
		{"TIMEOUT", ConnDisconnected},
		{"", ConnDisconnected},
	}

	for _, tt := range tests {
		if got := connStateFromBridge(tt.input); got != tt.want {
			t.Errorf("connStateFromBridge(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDecodeMessageID(t *testing.T) {
	id, err := decodeMessageID(json.RawMessage(`{"id":"true_123@c.us_ABC"}`))
	if err != nil {
		t.Fatalf("decodeMessageID error: %v", err)
	}
	if id != "true_123@c.us_ABC" {
		t.Errorf("id = %q, want %q", id, "true_123@c.us_ABC")
	}

	if _, err := decodeMessageID(json.RawMessage(`not json`)); err == nil {
		t.Error("decodeMessageID with invalid JSON: expected error")
	}
}

func TestRequest_NotRunning(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")

	_, err := b.request(context.Background(), "send", nil)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("request on stopped bridge: err = %v, want ErrNotRunning", err)
	}
}

func TestState_NotRunning(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")

	state, err := b.State(context.Background())
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}
	if state != ConnDisconnected {
		t.Errorf("State() = %q, want %q", state, ConnDisconnected)
	}
}

func TestHandleEventLine_EmitsLifecycleEvents(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")
	started := make(chan error, 1)

	b.handleEventLine(wireMessage{Event: "qr", Code: "2@abc"}, started)
	b.handleEventLine(wireMessage{Event: "ready"}, started)
	b.handleEventLine(wireMessage{Event: "disconnected", Reason: "NAVIGATION"}, started)

	want := []Event{
		{Kind: EventQR, Code: "2@abc"},
		{Kind: EventReady},
		{Kind: EventDisconnected, Reason: "NAVIGATION"},
	}
	for i, w := range want {
		select {
		case got := <-b.Events():
			if got != w {
				t.Errorf("event[%d] = %+v, want %+v", i, got, w)
			}
		default:
			t.Fatalf("event[%d] missing", i)
		}
	}
}

func TestHandleEventLine_StartedSignals(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")
	started := make(chan error, 1)

	b.handleEventLine(wireMessage{Event: "started"}, started)

	select {
	case err := <-started:
		if err != nil {
			t.Errorf("started error = %v, want nil", err)
		}
	default:
		t.Fatal("started signal missing")
	}
}

func TestHandleEventLine_StartupFailed(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")
	started := make(chan error, 1)

	b.handleEventLine(wireMessage{Event: "startup_failed", Reason: "browser crashed"}, started)

	select {
	case err := <-started:
		if err == nil || err.Error() != "browser crashed" {
			t.Errorf("started error = %v, want %q", err, "browser crashed")
		}
	default:
		t.Fatal("started signal missing")
	}
}

func TestDeliver_ResolvesPending(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")
	ch := make(chan response, 1)
	b.pending["req-1"] = ch

	b.deliver(wireMessage{ID: "req-1", OK: true, Result: json.RawMessage(`{"id":"m1"}`)})

	select {
	case resp := <-ch:
		if resp.err != nil {
			t.Errorf("response err = %v, want nil", resp.err)
		}
		if string(resp.result) != `{"id":"m1"}` {
			t.Errorf("result = %s, want {\"id\":\"m1\"}", resp.result)
		}
	default:
		t.Fatal("pending request not resolved")
	}

	if len(b.pending) != 0 {
		t.Errorf("pending map has %d entries after deliver, want 0", len(b.pending))
	}
}

func TestDeliver_ErrorResponse(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")
	ch := make(chan response, 1)
	b.pending["req-2"] = ch

	b.deliver(wireMessage{ID: "req-2", OK: false, Error: "no such chat"})

	resp := <-ch
	if resp.err == nil {
		t.Fatal("response err = nil, want error")
	}
	if resp.err.Error() != "wa: no such chat" {
		t.Errorf("err = %q, want %q", resp.err, "wa: no such chat")
	}
}

func TestDestroy_NeverStarted(t *testing.T) {
	b := NewBridge(config.BridgeConfig{Binary: "node"}, "t1", "/tmp/auth/t1")

	if err := b.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}

	// Event stream must be closed.
	if _, open := <-b.Events(); open {
		t.Error("event stream still open after Destroy")
	}

	// Destroy is idempotent.
	if err := b.Destroy(context.Background()); err != nil {
		t.Fatalf("second Destroy() error: %v", err)
	}

	// A destroyed bridge refuses to start.
	if err := b.Start(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Start() after Destroy: err = %v, want ErrDestroyed", err)
	}
}

// TestStart_ShellSidecar exercises the full launch, event, and teardown path
// with a shell stand-in for the Node sidecar.
func TestStart_ShellSidecar(t *testing.T) {
	script := `echo '{"event":"started"}'; echo '{"event":"qr","code":"2@test"}'; exec sleep 60`
	b := NewBridge(config.BridgeConfig{
		Binary:          "/bin/sh",
		Args:            []string{"-c", script},
		StartTimeout:    10 * time.Second,
		GracefulTimeout: 1 * time.Second,
	}, "t1", t.TempDir())

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case ev := <-b.Events():
		if ev.Kind != EventQR || ev.Code != "2@test" {
			t.Errorf("event = %+v, want qr/2@test", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for qr event")
	}

	if err := b.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}

	// Stream drains (a disconnect may be in flight) and then closes.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, open := <-b.Events():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("event stream not closed after Destroy")
		}
	}
}
