package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maddy52/whatsappweb/internal/wa"
)

// waUserSuffix is the chat-id suffix for individual accounts.
const waUserSuffix = "@c.us"

// NormalizeRecipient converts a phone number into a chat id. Input already
// carrying the user suffix is passed through untouched; anything else has
// every non-digit stripped before the suffix is appended.
func NormalizeRecipient(to string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", ErrMissingRecipient
	}
	if strings.HasSuffix(to, waUserSuffix) {
		return to, nil
	}

	var digits strings.Builder
	for _, r := range to {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", fmt.Errorf("%w: no digits in %q", ErrMissingRecipient, to)
	}
	return digits.String() + waUserSuffix, nil
}

// SendResult reports a dispatched message.
type SendResult struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// Send dispatches a text message through the tenant's session, starting
// the session first if necessary.
func (m *Manager) Send(ctx context.Context, tenantID, to, text string) (SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return SendResult{}, ErrMissingPayload
	}
	return m.dispatch(ctx, tenantID, to, "text", func(ctx context.Context, client wa.Client, chatID string) (string, error) {
		return client.Send(ctx, chatID, text)
	})
}

// SendMedia dispatches a media message referencing a file on local disk.
func (m *Manager) SendMedia(ctx context.Context, tenantID, to, path, caption string) (SendResult, error) {
	if strings.TrimSpace(path) == "" {
		return SendResult{}, fmt.Errorf("%w: missing media path", ErrMissingPayload)
	}
	return m.dispatch(ctx, tenantID, to, "media", func(ctx context.Context, client wa.Client, chatID string) (string, error) {
		return client.SendMedia(ctx, chatID, path, caption)
	})
}

// dispatch is the shared send pipeline: validate, mark busy, ensure the
// session is initialized and ready, confirm connectivity, check recipient
// registration, then hand off to the kind-specific send function.
//
// The busy flag is held for the whole pipeline so the idle reaper defers
// while an operation is in flight. On success the idle timer is re-armed
// (or, with zero idle, the session is torn down synchronously).
func (m *Manager) dispatch(
	ctx context.Context,
	tenantID, to, kind string,
	send func(ctx context.Context, client wa.Client, chatID string) (string, error),
) (result SendResult, err error) {
	if err = ValidateTenantID(tenantID); err != nil {
		return SendResult{}, err
	}
	chatID, err := NormalizeRecipient(to)
	if err != nil {
		return SendResult{}, err
	}

	st, _ := m.registry.GetOrCreate(tenantID)

	st.mu.Lock()
	st.busy = true
	if st.idleTimer != nil {
		st.idleTimer.Stop()
		st.idleTimer = nil
	}
	st.mu.Unlock()

	started := time.Now()
	defer func() {
		st.mu.Lock()
		st.busy = false
		st.mu.Unlock()

		if m.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.metrics.ObserveSend(tenantID, kind, outcome, time.Since(started))
		}

		if err == nil && m.cfg.Idle == 0 {
			m.teardownAfterSend(st)
			return
		}
		m.arm(st)
	}()

	if err = m.ensureInitialized(ctx, st); err != nil {
		return SendResult{}, err
	}
	if err = m.waitUntilReady(ctx, st); err != nil {
		return SendResult{}, err
	}

	st.mu.Lock()
	client := st.client
	st.mu.Unlock()
	if client == nil {
		err = ErrNotReady
		return SendResult{}, err
	}

	if err = m.waitConnected(ctx, client); err != nil {
		return SendResult{}, err
	}

	registered, rerr := client.IsRegistered(ctx, chatID)
	if rerr != nil {
		err = fmt.Errorf("checking recipient registration: %w", rerr)
		return SendResult{}, err
	}
	if !registered {
		err = fmt.Errorf("%w: %s", ErrNotRegistered, chatID)
		return SendResult{}, err
	}

	messageID, serr := send(ctx, client, chatID)
	if serr != nil {
		err = fmt.Errorf("sending %s message: %w", kind, serr)
		return SendResult{}, err
	}

	m.logger.Info("message sent",
		"tenant", tenantID,
		"to", chatID,
		"kind", kind,
		"message_id", messageID,
	)

	if m.recorder != nil {
		if aerr := m.recorder.RecordSend(ctx, tenantID, chatID, messageID, kind); aerr != nil {
			m.logger.Warn("send audit record failed",
				"tenant", tenantID,
				"error", aerr,
			)
		}
	}

	return SendResult{MessageID: messageID, To: chatID}, nil
}

// Logout signs the tenant out of the messaging network, destroys the
// client, and removes the registry entry. The remote side invalidates the
// linked credentials, so the on-disk directory is left for the next pairing
// to overwrite.
func (m *Manager) Logout(ctx context.Context, tenantID string) error {
	st, ok := m.registry.Get(tenantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	st.mu.Lock()
	if st.idleTimer != nil {
		st.idleTimer.Stop()
		st.idleTimer = nil
	}
	client := st.client
	st.client = nil
	st.phase = PhaseDestroyed
	st.qr = ""
	st.changedLocked()
	st.mu.Unlock()

	if client != nil {
		if err := client.Logout(ctx); err != nil {
			m.logger.Warn("remote logout failed",
				"tenant", tenantID,
				"error", err,
			)
		}
		m.destroyClient(st, client)
	}

	m.registry.Remove(tenantID)
	m.logger.Info("session logged out", "tenant", tenantID)
	m.notifyTransition(st, "logout")
	return nil
}

// Delete destroys the tenant's client and removes the registry entry
// without signing out remotely. With purge set, the on-disk authentication
// state is erased as well, forcing a fresh QR pairing next time.
func (m *Manager) Delete(ctx context.Context, tenantID string, purge bool) error {
	st, ok := m.registry.Get(tenantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	st.mu.Lock()
	if st.idleTimer != nil {
		st.idleTimer.Stop()
		st.idleTimer = nil
	}
	client := st.client
	st.client = nil
	st.phase = PhaseDestroyed
	st.qr = ""
	st.changedLocked()
	st.mu.Unlock()

	if client != nil {
		m.destroyClient(st, client)
	}

	m.registry.Remove(tenantID)

	if purge {
		if err := m.removeAuthState(tenantID); err != nil {
			return err
		}
	}

	m.logger.Info("session deleted",
		"tenant", tenantID,
		"purged", purge,
	)
	m.notifyTransition(st, "deleted")
	return nil
}
