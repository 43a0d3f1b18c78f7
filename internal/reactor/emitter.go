package reactor

import (
	"github.com/google/uuid"
)

// Transport is the publish side of the broker connection.
//
// Publish must return as soon as the message has been handed to the
// client; an error means the hand-off itself failed.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Emitter turns operator commits into setpoint publishes.
type Emitter struct {
	ns        Namespace
	engine    *Engine
	transport Transport
	newID     func() string
}

// NewEmitter creates an emitter that publishes through transport.
func NewEmitter(ns Namespace, engine *Engine, transport Transport) *Emitter {
	return &Emitter{
		ns:        ns,
		engine:    engine,
		transport: transport,
		newID:     uuid.NewString,
	}
}

// Commit publishes the pending setpoint of ch.
//
// It fails with ErrPreconditionFailed when conn is not Connected and with
// ErrTransport when the publish call fails. The command is not retried.
func (e *Emitter) Commit(ch Channel, conn Connectivity) (OutboundCommand, error) {
	var brokerTopic string
	cmd, err := e.engine.OnCommit(ch, conn, func(cmd OutboundCommand) error {
		brokerTopic = e.ns.Resolve(cmd.Topic)
		return e.transport.Publish(brokerTopic, []byte(cmd.Payload), cmd.QoS, cmd.Retain)
	})
	if err != nil {
		return OutboundCommand{}, err
	}

	cmd.ID = e.newID()
	cmd.BrokerTopic = brokerTopic
	return cmd, nil
}
