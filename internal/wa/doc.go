// Package wa defines the boundary to the external WhatsApp automation
// client and provides the default sidecar-process implementation.
//
// The gateway never speaks the messaging network's wire protocol itself.
// Each tenant's session owns one automation client: a browser-driven
// whatsapp-web.js instance running in a Node sidecar process, supervised
// by Bridge and driven over a newline-delimited JSON protocol on the
// sidecar's stdin/stdout.
//
// Protocol (one JSON object per line):
//
//	-> {"id":"<uuid>","op":"send","params":{"to":"...","text":"..."}}
//	<- {"id":"<uuid>","ok":true,"result":{"id":"true_...@c.us_ABC"}}
//	<- {"event":"qr","code":"2@AbC..."}
//	<- {"event":"ready"}
//
// Events flow independently of request/response pairs; the session layer
// consumes them to drive its finite-state machine.
//
// The session lifecycle manager depends only on the Client interface, so
// tests substitute a fake client without any subprocess involvement.
package wa
