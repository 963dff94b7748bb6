package session

import (
	"sync"
	"time"

	"github.com/maddy52/whatsappweb/internal/wa"
)

// Phase is a state of the per-tenant lifecycle machine.
type Phase string

const (
	// PhaseUnauthenticated: registry entry exists but no client has been
	// started yet.
	PhaseUnauthenticated Phase = "unauthenticated"

	// PhaseInitializing: a startup attempt is in flight.
	PhaseInitializing Phase = "initializing"

	// PhaseAwaitingScan: a QR challenge is pending its out-of-band scan.
	PhaseAwaitingScan Phase = "awaiting_scan"

	// PhaseReady: the client finished startup and can send.
	PhaseReady Phase = "ready"

	// PhaseFailed: startup exhausted its retries, authentication was
	// rejected, or the client disconnected. The next operation re-triggers
	// initialization.
	PhaseFailed Phase = "failed"

	// PhaseDestroyed: the client was torn down (idle reap, logout, delete)
	// but the registry entry may remain. On-disk authentication state is
	// preserved unless explicitly purged.
	PhaseDestroyed Phase = "destroyed"
)

// State is the per-tenant session record.
//
// All mutable fields are guarded by mu. The notification channel is closed
// and replaced on every transition so that any number of waiters observe it.
type State struct {
	tenantID string

	mu        sync.Mutex
	client    wa.Client
	phase     Phase
	qr        string // pending challenge payload; empty when none
	lastError string
	busy      bool
	idleTimer *time.Timer
	initDone  chan struct{} // non-nil while an initialization is in flight
	initErr   error         // outcome of the most recent initialization
	notify    chan struct{} // closed and replaced on every transition
}

// newState creates a State in the unauthenticated phase.
func newState(tenantID string) *State {
	return &State{
		tenantID: tenantID,
		phase:    PhaseUnauthenticated,
		notify:   make(chan struct{}),
	}
}

// TenantID returns the immutable tenant identifier.
func (s *State) TenantID() string {
	return s.tenantID
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	TenantID    string `json:"tenantId"`
	Phase       Phase  `json:"phase"`
	Ready       bool   `json:"ready"`
	QRAvailable bool   `json:"qrAvailable"`
	LastError   string `json:"lastError,omitempty"`
	Busy        bool   `json:"busy"`
}

// Snapshot returns a consistent snapshot of the session.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked builds a Status. Caller must hold mu.
func (s *State) snapshotLocked() Status {
	return Status{
		TenantID:    s.tenantID,
		Phase:       s.phase,
		Ready:       s.phase == PhaseReady,
		QRAvailable: s.qr != "",
		LastError:   s.lastError,
		Busy:        s.busy,
	}
}

// changedLocked wakes all transition waiters. Caller must hold mu.
func (s *State) changedLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}
