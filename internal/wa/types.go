package wa

import "context"

// ConnState is the transport-level connection state of an automation client.
//
// "Ready" at the session layer means the client library finished startup;
// ConnConnected is the stronger check that the network link is usable.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
)

// EventKind identifies a lifecycle event emitted by an automation client.
type EventKind string

const (
	// EventQR carries a fresh pairing challenge that must be scanned
	// out-of-band before the session can authenticate.
	EventQR EventKind = "qr"

	// EventAuthenticated signals that a pairing challenge was accepted.
	// Readiness usually follows shortly after.
	EventAuthenticated EventKind = "authenticated"

	// EventReady signals that the client finished startup and can send.
	EventReady EventKind = "ready"

	// EventAuthFailure signals that authentication was rejected.
	EventAuthFailure EventKind = "auth_failure"

	// EventDisconnected signals that the client lost its connection or the
	// underlying process exited.
	EventDisconnected EventKind = "disconnected"
)

// Event is a lifecycle event from an automation client.
type Event struct {
	Kind EventKind

	// Code is the pairing challenge payload. Set only for EventQR.
	Code string

	// Reason describes a failure or disconnect. Set for EventAuthFailure
	// and EventDisconnected.
	Reason string
}

// Client is the boundary to one external automation-driven messaging session.
//
// A Client is expensive to start, fragile, and exclusively owned by one
// tenant's session state at a time. Implementations must be safe for
// concurrent use; the session layer serialises operations per tenant but
// may poll State while a send is in flight.
type Client interface {
	// Start launches the client. It returns once the client has begun its
	// startup sequence; readiness and pairing challenges arrive later on
	// the event stream. Start may be called again after a failure to
	// relaunch the client.
	Start(ctx context.Context) error

	// Events returns the lifecycle event stream. The channel is closed
	// when the client is destroyed.
	Events() <-chan Event

	// State reports the current transport-level connection state.
	State(ctx context.Context) (ConnState, error)

	// Send dispatches a text message to a normalised recipient identifier
	// and returns the message ID assigned by the network.
	Send(ctx context.Context, to, text string) (string, error)

	// SendMedia dispatches a stored media file with an optional caption.
	SendMedia(ctx context.Context, to, path, caption string) (string, error)

	// IsRegistered reports whether the recipient identifier belongs to a
	// registered account on the messaging network.
	IsRegistered(ctx context.Context, to string) (bool, error)

	// Logout invalidates the client's authentication with the network.
	Logout(ctx context.Context) error

	// Destroy releases the client and its underlying process. It is
	// best-effort: implementations log failures rather than returning
	// them where possible, and must close the event stream.
	Destroy(ctx context.Context) error
}

// Factory creates a Client for a tenant. authDir is the tenant's opaque
// authentication-state directory; the client owns its contents.
type Factory func(tenantID, authDir string) Client
