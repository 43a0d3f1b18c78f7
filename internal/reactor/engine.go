package reactor

import (
	"fmt"
	"strconv"
)

// Setpoint commands are always published retained at QoS 1 so the broker
// hands the latest target to a controller that reconnects.
const (
	commandQoS    byte = 1
	commandRetain      = true
)

// OutboundCommand is a setpoint publish produced by a commit.
type OutboundCommand struct {
	ID      string  `json:"id,omitempty"`
	Channel Channel `json:"channel"`
	// Topic is relative to the namespace root, e.g. "set/temp".
	Topic string `json:"topic"`
	// BrokerTopic is the fully qualified topic the command was sent to.
	BrokerTopic string  `json:"broker_topic,omitempty"`
	Payload     string  `json:"payload"`
	Value       float64 `json:"value"`
	Retain      bool    `json:"retain"`
	QoS         byte    `json:"qos"`
}

// PublishFunc hands a command to the transport. It must not wait for the
// broker to acknowledge delivery.
type PublishFunc func(cmd OutboundCommand) error

// Engine owns the per-channel setpoint state and the rules for merging
// device echoes with operator edits.
//
// Engine is not safe for concurrent use. It is driven from the session's
// dispatcher goroutine only.
type Engine struct {
	order  []Channel
	specs  map[Channel]ChannelSpec
	states map[Channel]*ChannelState
}

// NewEngine creates an engine with every channel in StateBootstrap and both
// setpoints at the channel default.
func NewEngine(specs []ChannelSpec) *Engine {
	e := &Engine{
		order:  make([]Channel, 0, len(specs)),
		specs:  make(map[Channel]ChannelSpec, len(specs)),
		states: make(map[Channel]*ChannelState, len(specs)),
	}
	for _, spec := range specs {
		if _, dup := e.specs[spec.Name]; dup {
			continue
		}
		e.order = append(e.order, spec.Name)
		e.specs[spec.Name] = spec
		e.states[spec.Name] = &ChannelState{
			Remote:  spec.Default,
			Pending: spec.Default,
			State:   StateBootstrap,
		}
	}
	return e
}

// Channels returns the configured channels in declaration order.
func (e *Engine) Channels() []Channel {
	out := make([]Channel, len(e.order))
	copy(out, e.order)
	return out
}

// Spec returns the static description of ch.
func (e *Engine) Spec(ch Channel) (ChannelSpec, bool) {
	spec, ok := e.specs[ch]
	return spec, ok
}

// State returns a copy of the current state of ch.
func (e *Engine) State(ch Channel) (ChannelState, bool) {
	st, ok := e.states[ch]
	if !ok {
		return ChannelState{}, false
	}
	return *st, true
}

// OnDeviceEcho records a setpoint reported by the device.
//
// The remote setpoint is always replaced. The first echo for a channel also
// adopts the value as the pending setpoint; later echoes never touch it.
func (e *Engine) OnDeviceEcho(ch Channel, value float64) error {
	st, ok := e.states[ch]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}

	st.Remote = value
	if st.State == StateBootstrap {
		st.Pending = value
		st.State = StateSynced
		return nil
	}
	st.settle()
	return nil
}

// OnOperatorEdit stages value as the pending setpoint of ch. It is allowed
// regardless of connectivity and never touches the remote setpoint.
func (e *Engine) OnOperatorEdit(ch Channel, value float64) error {
	spec, ok := e.specs[ch]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	if err := spec.validate(value); err != nil {
		return err
	}

	st := e.states[ch]
	st.Pending = spec.normalize(value)
	st.settle()
	return nil
}

// OnCommit sends the pending setpoint of ch to the device.
//
// When conn is not Connected it returns ErrPreconditionFailed and changes
// nothing. When publish fails it returns an error wrapping ErrTransport and
// changes nothing. Otherwise the remote setpoint optimistically takes the
// pending value before any device acknowledgement arrives.
func (e *Engine) OnCommit(ch Channel, conn Connectivity, publish PublishFunc) (OutboundCommand, error) {
	st, ok := e.states[ch]
	if !ok {
		return OutboundCommand{}, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	if conn != Connected {
		return OutboundCommand{}, fmt.Errorf("%w (connectivity %s)", ErrPreconditionFailed, conn)
	}

	cmd := OutboundCommand{
		Channel: ch,
		Topic:   setpointTopic(ch),
		Payload: FormatSetpoint(st.Pending),
		Value:   st.Pending,
		Retain:  commandRetain,
		QoS:     commandQoS,
	}
	if err := publish(cmd); err != nil {
		return OutboundCommand{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	st.Remote = st.Pending
	st.settle()
	return cmd, nil
}

// settle recomputes the sync state after a value change. A channel that is
// still waiting for its first echo stays in StateBootstrap.
func (st *ChannelState) settle() {
	switch {
	case st.State == StateBootstrap:
	case st.Pending == st.Remote:
		st.State = StateSynced
	default:
		st.State = StateDirty
	}
}

// FormatSetpoint renders v as the shortest decimal text that parses back to
// the same value, e.g. 38 -> "38", 6.8 -> "6.8".
func FormatSetpoint(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
