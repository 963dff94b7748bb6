package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/maddy52/whatsappweb/internal/wa"
)

// Lifecycle timing constants.
const (
	// minIdle is the threshold below which (nonzero) idle teardown is
	// disabled entirely: the session is kept warm.
	minIdle = 5 * time.Second

	// busyRecheckDelay is the deferral used when the idle timer would fire
	// while an operation is in flight.
	busyRecheckDelay = 2 * time.Second

	// statePollInterval is how often the readiness waiter polls the
	// client's connection state as a fallback for missed events.
	statePollInterval = 500 * time.Millisecond

	// connectPollInterval is how often the transport-level connectivity
	// confirmation polls after readiness.
	connectPollInterval = 250 * time.Millisecond

	// destroyTimeout bounds best-effort client destruction.
	destroyTimeout = 30 * time.Second
)

// IdleDestroyedMarker is recorded as a session's lastError after an idle
// teardown, until the next successful initialization clears it.
const IdleDestroyedMarker = "idle_destroyed"

// tenantIDPattern allow-lists tenant identifiers. Tenant ids name
// authentication-state and media directories, so only filesystem-safe
// characters are accepted.
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Logger defines the logging interface used by the Manager.
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

// Recorder persists dispatched messages for the send audit log.
// Recording is best-effort: failures are logged, never surfaced to senders.
type Recorder interface {
	RecordSend(ctx context.Context, tenantID, recipient, messageID, kind string) error
}

// Metrics receives send and lifecycle observations. Implementations must
// not block.
type Metrics interface {
	ObserveSend(tenantID, kind, outcome string, elapsed time.Duration)
	ObserveTransition(tenantID string, phase Phase)
}

// TransitionHook is invoked after every lifecycle transition with a
// snapshot of the session and the event name that caused it.
type TransitionHook func(status Status, event string)

// Config contains session lifecycle settings.
type Config struct {
	// AuthDir is the base directory for per-tenant authentication state.
	AuthDir string

	// Idle is the idle-teardown duration. Zero tears down immediately
	// after every successful send; nonzero values below the minimum
	// threshold disable idle teardown.
	Idle time.Duration

	// ReadyTimeout bounds readiness and connectivity waits.
	ReadyTimeout time.Duration

	// Retry is the startup retry policy. Zero value means DefaultRetryPolicy.
	Retry RetryPolicy
}

// Manager owns every tenant's session lifecycle.
type Manager struct {
	cfg      Config
	registry *Registry
	factory  wa.Factory
	retry    RetryPolicy
	logger   Logger
	recorder Recorder
	metrics  Metrics

	hookMu sync.RWMutex
	hooks  []TransitionHook
}

// NewManager creates a session manager. The factory produces one automation
// client per tenant on demand.
func NewManager(cfg Config, factory wa.Factory) *Manager {
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 45 * time.Second
	}

	return &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		factory:  factory,
		retry:    retry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetRecorder sets the send audit recorder.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// SetMetrics sets the metrics sink.
func (m *Manager) SetMetrics(mx Metrics) {
	m.metrics = mx
}

// OnTransition registers a hook invoked after every lifecycle transition.
// Hooks run synchronously outside the session lock and must be fast.
func (m *Manager) OnTransition(hook TransitionHook) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// ValidateTenantID checks an identifier against the allow-listed pattern.
func ValidateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, tenantID)
	}
	return nil
}

// authDirFor returns the tenant's opaque authentication-state directory.
func (m *Manager) authDirFor(tenantID string) string {
	return filepath.Join(m.cfg.AuthDir, tenantID)
}

// Create ensures a session exists for the tenant and attempts
// initialization. Initialization failures are reflected in the returned
// status's LastError rather than the error return, which reports only
// validation failures.
func (m *Manager) Create(ctx context.Context, tenantID string) (Status, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return Status{}, err
	}

	st, created := m.registry.GetOrCreate(tenantID)
	if created {
		m.logger.Info("session created", "tenant", tenantID)
	}

	if err := m.ensureInitialized(ctx, st); err != nil {
		m.logger.Warn("session initialization failed",
			"tenant", tenantID,
			"error", err,
		)
	}

	return st.Snapshot(), nil
}

// Status returns the tenant's session snapshot.
func (m *Manager) Status(tenantID string) (Status, error) {
	st, ok := m.registry.Get(tenantID)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	return st.Snapshot(), nil
}

// List returns snapshots of every known session, ordered by tenant id.
func (m *Manager) List() []Status {
	states := m.registry.List()
	statuses := make([]Status, 0, len(states))
	for _, st := range states {
		statuses = append(statuses, st.Snapshot())
	}
	return statuses
}

// Challenge returns the tenant's pending QR challenge payload.
func (m *Manager) Challenge(tenantID string) (string, error) {
	st, ok := m.registry.Get(tenantID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.qr == "" {
		return "", ErrNoChallenge
	}
	return st.qr, nil
}

// Shutdown destroys every live client, preserving on-disk authentication
// state, and cancels all idle timers. Registry entries are left in place;
// the process is expected to exit afterwards.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, st := range m.registry.List() {
		st.mu.Lock()
		if st.idleTimer != nil {
			st.idleTimer.Stop()
			st.idleTimer = nil
		}
		client := st.client
		st.client = nil
		if client != nil {
			st.phase = PhaseDestroyed
		}
		st.changedLocked()
		st.mu.Unlock()

		if client != nil {
			if err := client.Destroy(ctx); err != nil {
				m.logger.Warn("shutdown destroy failed",
					"tenant", st.tenantID,
					"error", err,
				)
			}
		}
	}
}

// notifyTransition snapshots the session and fans the event out to hooks
// and metrics. Must be called without holding the session lock.
func (m *Manager) notifyTransition(st *State, event string) {
	status := st.Snapshot()

	if m.metrics != nil {
		m.metrics.ObserveTransition(status.TenantID, status.Phase)
	}

	m.hookMu.RLock()
	hooks := m.hooks
	m.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(status, event)
	}
}

// destroyClient detaches the client from the session (if still attached)
// and destroys it best-effort.
func (m *Manager) destroyClient(st *State, client wa.Client) {
	st.mu.Lock()
	if st.client == client {
		st.client = nil
	}
	st.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := client.Destroy(ctx); err != nil {
		m.logger.Warn("client destroy failed",
			"tenant", st.tenantID,
			"error", err,
		)
	}
}

// pump drives the session state machine from one client's event stream.
// It exits when the client is destroyed and its stream closes.
func (m *Manager) pump(st *State, client wa.Client) {
	for ev := range client.Events() {
		m.handleEvent(st, client, ev)
	}
}

// handleEvent applies one lifecycle event to the state machine. Events from
// a client that is no longer the session's current client are ignored.
func (m *Manager) handleEvent(st *State, client wa.Client, ev wa.Event) {
	st.mu.Lock()
	if st.client != client {
		st.mu.Unlock()
		return
	}

	var event string
	switch ev.Kind {
	case wa.EventQR:
		// A fresh challenge on a ready session means authentication was
		// lost; either way the session is no longer usable until scanned.
		st.qr = ev.Code
		st.phase = PhaseAwaitingScan
		event = "qr"
	case wa.EventAuthenticated:
		st.qr = ""
		event = "authenticated"
	case wa.EventReady:
		st.qr = ""
		st.phase = PhaseReady
		st.lastError = ""
		event = "ready"
	case wa.EventAuthFailure:
		st.qr = ""
		st.phase = PhaseFailed
		st.lastError = ev.Reason
		event = "auth_failure"
	case wa.EventDisconnected:
		// No automatic reconnection: the next operation re-triggers
		// initialization.
		st.phase = PhaseFailed
		st.lastError = ev.Reason
		event = "disconnected"
	default:
		st.mu.Unlock()
		return
	}
	st.changedLocked()
	st.mu.Unlock()

	m.logger.Debug("session event",
		"tenant", st.tenantID,
		"event", event,
	)
	m.notifyTransition(st, event)

	if ev.Kind == wa.EventReady || ev.Kind == wa.EventQR {
		m.arm(st)
	}
}

// removeAuthState erases the tenant's on-disk authentication directory.
func (m *Manager) removeAuthState(tenantID string) error {
	dir := m.authDirFor(tenantID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing auth state for %s: %w", tenantID, err)
	}
	return nil
}
