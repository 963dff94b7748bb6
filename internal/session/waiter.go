package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maddy52/whatsappweb/internal/wa"
)

// waitUntilReady blocks until the session reaches the ready phase, a QR
// challenge appears, startup fails, or the ready timeout elapses.
//
// Transition notifications are the primary wakeup; a periodic state poll
// backstops them, since the sidecar can reach a connected state without
// emitting a matching event after a fast cached-credential start.
func (m *Manager) waitUntilReady(ctx context.Context, st *State) error {
	deadline := time.NewTimer(m.cfg.ReadyTimeout)
	defer deadline.Stop()

	poll := time.NewTicker(statePollInterval)
	defer poll.Stop()

	for {
		st.mu.Lock()
		phase := st.phase
		qr := st.qr
		lastError := st.lastError
		client := st.client
		notify := st.notify
		st.mu.Unlock()

		switch {
		case phase == PhaseReady:
			return nil
		case qr != "":
			return ErrAuthPending
		case phase == PhaseFailed:
			if lastError != "" {
				return fmt.Errorf("%w: %s", ErrStartupFailed, lastError)
			}
			return ErrStartupFailed
		case client == nil && phase != PhaseInitializing:
			// During initialization the client detaches between retry
			// attempts; that is not terminal, the attempt's outcome is.
			return ErrNotReady
		}

		select {
		case <-notify:
		case <-poll.C:
			if client != nil {
				m.markReadyIfConnected(ctx, st, client)
			}
		case <-deadline.C:
			return ErrNotReady
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// markReadyIfConnected promotes the session to ready when a direct state
// query reports the client connected. Used by the waiter's poll fallback.
func (m *Manager) markReadyIfConnected(ctx context.Context, st *State, client wa.Client) {
	cs, err := client.State(ctx)
	if err != nil || cs != wa.ConnConnected {
		return
	}

	st.mu.Lock()
	// A challenge that arrived since the caller's snapshot wins: the
	// transport can report connected while the session still needs its QR
	// scanned, and promoting would silently discard the pending challenge.
	if st.client != client || st.phase == PhaseReady || st.qr != "" {
		st.mu.Unlock()
		return
	}
	st.qr = ""
	st.phase = PhaseReady
	st.lastError = ""
	st.changedLocked()
	st.mu.Unlock()

	m.notifyTransition(st, "ready")
	m.arm(st)
}

// waitConnected confirms transport-level connectivity after readiness,
// polling the client until it reports connected or the timeout elapses.
// A ready session whose socket is still settling passes through here.
func (m *Manager) waitConnected(ctx context.Context, client wa.Client) error {
	deadline := time.NewTimer(m.cfg.ReadyTimeout)
	defer deadline.Stop()

	poll := time.NewTicker(connectPollInterval)
	defer poll.Stop()

	for {
		cs, err := client.State(ctx)
		if err != nil {
			if errors.Is(err, wa.ErrNotRunning) || errors.Is(err, wa.ErrDestroyed) {
				return ErrNotReady
			}
			return err
		}
		if cs == wa.ConnConnected {
			return nil
		}

		select {
		case <-poll.C:
		case <-deadline.C:
			return ErrNotReady
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
