// Package reactor implements setpoint reconciliation and the telemetry
// stream for a single bioreactor controller.
//
// The controller publishes under one topic root:
//
//	<root>/status        free-text lifecycle label
//	<root>/telemetry     JSON object, channel name -> number
//	<root>/set/<channel> decimal setpoint text (retained, QoS 1)
//
// Each channel keeps two setpoints. Remote is what the device last
// confirmed; Pending is what the operator has staged. The first echo a
// channel receives overwrites both, after which echoes only move Remote.
// A commit publishes Pending and optimistically copies it into Remote.
//
// # Concurrency
//
// Engine, Router, RingBuffer and Emitter are plain single-goroutine types.
// Session wraps them behind one event channel drained by Run, so broker
// callbacks and HTTP handlers never touch state directly. Readers take
// immutable snapshots:
//
//	sess := reactor.NewSession(reactor.SessionConfig{TopicRoot: "bio/v1", Channels: specs}, transport)
//	go sess.Run(ctx)
//	sess.Deliver("bio/v1/set/temp", []byte("36.5"))
//	snap := sess.Snapshot()
package reactor
