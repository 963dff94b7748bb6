// Package session implements the per-tenant session lifecycle manager at
// the heart of the gateway.
//
// Each tenant owns exactly one automation client (wa.Client): a long-lived,
// expensive, flaky browser-driven messaging session that must be paired once
// via a scanned QR challenge and then stays connected to send messages. The
// Manager creates, initialises, waits-for-readiness, serialises access to,
// idles-out, and recovers this client while many HTTP requests for the same
// tenant arrive concurrently.
//
// # Structure
//
//   - Registry: the single authority for tenant existence. A tenant's State
//     is created lazily on first reference and removed only by an explicit
//     logout or delete.
//   - State: per-tenant record. A finite-state machine over the phases
//     {unauthenticated, initializing, awaiting_scan, ready, failed,
//     destroyed}, guarded by a per-tenant mutex. Every transition closes a
//     notification channel that waiters select on.
//   - Manager.ensureInitialized: serialises and retries client startup.
//     Concurrent callers join the single in-flight attempt instead of racing
//     independent startups; transient failures are retried under a
//     RetryPolicy with half-started clients destroyed between attempts.
//   - Manager.waitUntilReady: blocks until the client is usable, racing
//     state-change notifications against a periodic connection-state poll.
//     A pending QR challenge fails the wait immediately, since a human may
//     never scan it within a request's lifetime.
//   - Idle reaper: a single cancel-and-recompute timer per tenant that tears
//     down an unused client to reclaim its cost while preserving on-disk
//     authentication state for fast relink.
//   - Operation gateway: Send, SendMedia, Status, Logout, and Delete compose
//     the above.
//
// # Invariants
//
//   - At most one live client per tenant, and at most one in-flight
//     initialization per tenant.
//   - ready implies no pending QR challenge.
//   - A busy session (operation in flight) is never idle-reaped; the reaper
//     defers with a short re-check instead.
//   - Idle teardown keeps the registry entry and the tenant's on-disk
//     authentication state; the next operation transparently recreates the
//     client.
//
// Thread Safety: all Manager and Registry methods are safe for concurrent
// use from multiple goroutines.
package session
