package session

import "errors"

// Domain errors for the session package.
//
// The API layer maps these onto HTTP statuses with errors.Is():
// validation errors to 400, ErrUnknownTenant and ErrNotRegistered to 404,
// ErrAuthPending to 412, ErrNotReady and ErrStartupFailed to 503.
var (
	// ErrInvalidTenantID is returned when a tenant id fails the allow-listed
	// character pattern. Tenant ids name filesystem directories, so the
	// pattern is strict.
	ErrInvalidTenantID = errors.New("session: invalid tenant id")

	// ErrUnknownTenant is returned when a tenant has no registry entry.
	ErrUnknownTenant = errors.New("session: unknown tenant")

	// ErrMissingRecipient is returned when a send has no recipient.
	ErrMissingRecipient = errors.New("session: missing recipient")

	// ErrMissingPayload is returned when a text send has no message body.
	ErrMissingPayload = errors.New("session: missing message text")

	// ErrAuthPending is returned when an operation requires a linked session
	// but a QR challenge is still awaiting its out-of-band scan.
	ErrAuthPending = errors.New("session: authentication required")

	// ErrNotReady is returned when a session did not become usable within
	// the configured ready timeout.
	ErrNotReady = errors.New("session: not ready")

	// ErrStartupFailed is returned when client startup exhausted its retry
	// budget. The underlying failure is attached via wrapping.
	ErrStartupFailed = errors.New("session: startup failed")

	// ErrNotRegistered is returned when the recipient is not a registered
	// account on the messaging network.
	ErrNotRegistered = errors.New("session: recipient not on WhatsApp")

	// ErrNoChallenge is returned when a QR challenge is requested but none
	// is pending.
	ErrNoChallenge = errors.New("session: no pairing challenge available")
)
