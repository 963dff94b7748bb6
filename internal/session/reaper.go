package session

import (
	"time"
)

// idleEnabled reports whether the timer-based idle reaper applies. Zero
// idle means immediate post-send teardown (handled in the gateway), and
// durations below the minimum threshold keep the session warm forever.
func (m *Manager) idleEnabled() bool {
	return m.cfg.Idle >= minIdle
}

// arm (re)schedules the session's idle teardown. Each call replaces any
// pending timer, so the countdown always measures time since the last
// activity. No-op when the reaper is disabled or no client is attached.
func (m *Manager) arm(st *State) {
	if !m.idleEnabled() {
		return
	}
	st.mu.Lock()
	m.armLocked(st, m.cfg.Idle)
	st.mu.Unlock()
}

// armLocked schedules a reap after d. Caller must hold st.mu.
func (m *Manager) armLocked(st *State, d time.Duration) {
	if st.client == nil {
		return
	}
	if st.idleTimer != nil {
		st.idleTimer.Stop()
	}
	st.idleTimer = time.AfterFunc(d, func() {
		m.reap(st)
	})
}

// reap fires when the idle timer expires. A busy session is never reaped;
// the check is re-queued on a short delay instead. Otherwise the client is
// destroyed, on-disk authentication state is preserved, and the session is
// marked so the next operation transparently re-initializes.
func (m *Manager) reap(st *State) {
	st.mu.Lock()
	if st.client == nil {
		st.idleTimer = nil
		st.mu.Unlock()
		return
	}
	if st.busy {
		m.armLocked(st, busyRecheckDelay)
		st.mu.Unlock()
		return
	}

	client := st.client
	st.client = nil
	if st.idleTimer != nil {
		st.idleTimer.Stop()
		st.idleTimer = nil
	}
	st.phase = PhaseDestroyed
	st.qr = ""
	st.lastError = IdleDestroyedMarker
	st.changedLocked()
	st.mu.Unlock()

	m.logger.Info("idle session destroyed", "tenant", st.tenantID)
	m.destroyClient(st, client)
	m.notifyTransition(st, "idle_destroyed")
}

// teardownAfterSend destroys the client immediately. Used when the idle
// duration is zero: every successful send is followed by a synchronous
// teardown, trading startup latency for a minimal resident footprint.
func (m *Manager) teardownAfterSend(st *State) {
	st.mu.Lock()
	client := st.client
	if client == nil {
		st.mu.Unlock()
		return
	}
	st.client = nil
	if st.idleTimer != nil {
		st.idleTimer.Stop()
		st.idleTimer = nil
	}
	st.phase = PhaseDestroyed
	st.qr = ""
	st.lastError = IdleDestroyedMarker
	st.changedLocked()
	st.mu.Unlock()

	m.logger.Info("session destroyed after send", "tenant", st.tenantID)
	m.destroyClient(st, client)
	m.notifyTransition(st, "idle_destroyed")
}
