package session

import (
	"context"
	"fmt"
	"os"
)

// ensureInitialized guarantees the session has a live client, starting one
// if needed. Concurrent callers collapse onto a single startup attempt: the
// first caller performs the work, later callers block on the same outcome.
func (m *Manager) ensureInitialized(ctx context.Context, st *State) error {
	st.mu.Lock()

	// Join an in-flight initialization rather than starting a second one.
	// This is checked before the fast path: a half-started attempt attaches
	// its client early, and a caller arriving mid-attempt must inherit that
	// attempt's outcome, not race ahead of it.
	if done := st.initDone; done != nil {
		st.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		st.mu.Lock()
		err := st.initErr
		st.mu.Unlock()
		return err
	}

	// Fast path: a client is attached and has not failed. Activity on a
	// live session refreshes its idle countdown.
	if st.client != nil && st.phase != PhaseFailed {
		st.mu.Unlock()
		m.arm(st)
		return nil
	}

	// Become the initializer. A failed client is replaced wholesale.
	stale := st.client
	st.client = nil
	done := make(chan struct{})
	st.initDone = done
	st.phase = PhaseInitializing
	st.changedLocked()
	st.mu.Unlock()

	m.notifyTransition(st, "initializing")

	if stale != nil {
		go m.destroyClient(st, stale)
	}

	err := m.startWithRetry(ctx, st)

	st.mu.Lock()
	st.initErr = err
	st.initDone = nil
	if err != nil {
		st.phase = PhaseFailed
		st.lastError = err.Error()
		st.changedLocked()
	}
	st.mu.Unlock()
	close(done)

	if err != nil {
		m.notifyTransition(st, "startup_failed")
		return err
	}
	return nil
}

// startWithRetry creates the tenant's authentication directory, then runs
// the factory-and-start sequence under the retry policy. Each failed attempt
// destroys its half-started client before the next try.
func (m *Manager) startWithRetry(ctx context.Context, st *State) error {
	authDir := m.authDirFor(st.tenantID)
	if err := os.MkdirAll(authDir, 0o700); err != nil {
		return fmt.Errorf("creating auth dir: %w", err)
	}

	err := m.retry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			m.logger.Info("retrying client startup",
				"tenant", st.tenantID,
				"attempt", attempt,
			)
		}

		client := m.factory(st.tenantID, authDir)

		st.mu.Lock()
		st.client = client
		st.mu.Unlock()

		go m.pump(st, client)

		if err := client.Start(ctx); err != nil {
			m.destroyClient(st, client)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}

	// Successful start clears the idle-teardown marker. The phase is left
	// to the event pump, which has already moved it (qr or ready) or will
	// shortly.
	st.mu.Lock()
	if st.lastError == IdleDestroyedMarker {
		st.lastError = ""
	}
	st.mu.Unlock()
	return nil
}
