// Package api exposes the console session over HTTP and WebSocket.
//
// REST endpoints under /api/v1 serve the state snapshot, channel views,
// telemetry history and the command audit trail, and accept operator
// edits and commits. The WebSocket hub pushes state.changed and
// telemetry.sample events to subscribed renderers and accepts the same
// edit and commit intents.
//
// Session errors map to HTTP status codes:
//
//	reactor.ErrUnknownChannel      404 not_found
//	reactor.ErrOutOfRange          400 validation_error
//	reactor.ErrPreconditionFailed  409 precondition_failed
//	reactor.ErrTransport           502 transport_error
//	reactor.ErrSessionClosed       503 unavailable
package api
