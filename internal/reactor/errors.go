package reactor

import "errors"

// Domain-specific errors for the reconciliation engine and session.
var (
	// ErrUnknownChannel is returned when a channel name is not part of the
	// configured channel set.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrInvalidValue is returned when a setpoint is NaN or infinite.
	ErrInvalidValue = errors.New("invalid setpoint value")

	// ErrOutOfRange is returned when an operator edit lies outside the
	// channel's [min, max] range.
	ErrOutOfRange = errors.New("setpoint out of range")

	// ErrPreconditionFailed is returned when a commit is attempted while the
	// transport is not connected. Callers should render commit as unavailable.
	ErrPreconditionFailed = errors.New("commit precondition failed: not connected")

	// ErrTransport is returned when the transport rejects a publish call.
	// The wrapped error carries the transport's reason.
	ErrTransport = errors.New("transport error")

	// ErrSessionClosed is returned by session operations after the
	// dispatcher has stopped.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionRunning is returned when Run is called more than once.
	ErrSessionRunning = errors.New("session already running")
)
