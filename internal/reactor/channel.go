package reactor

import (
	"fmt"
	"math"
)

// Channel identifies one independently controlled quantity, e.g. "temp".
type Channel string

// ChannelSpec is the static description of a channel.
type ChannelSpec struct {
	Name    Channel `json:"name"`
	Title   string  `json:"title,omitempty"`
	Unit    string  `json:"unit,omitempty"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step,omitempty"`
	Default float64 `json:"default"`
	// Integer channels carry whole-number setpoints; fractional input is
	// truncated toward zero.
	Integer bool `json:"integer,omitempty"`
}

// normalize applies the channel's number representation to v.
func (s ChannelSpec) normalize(v float64) float64 {
	if s.Integer {
		return math.Trunc(v)
	}
	return v
}

// validate checks an operator-supplied value against the channel range.
func (s ChannelSpec) validate(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
	if v < s.Min || v > s.Max {
		return fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrOutOfRange, s.Name, v, s.Min, s.Max)
	}
	return nil
}

// SyncState is the reconciliation state of one channel.
type SyncState int

const (
	// StateBootstrap means no device echo has been seen yet; the next echo
	// overwrites both the remote and the pending setpoint.
	StateBootstrap SyncState = iota
	// StateSynced means pending equals remote.
	StateSynced
	// StateDirty means the operator has staged a value that differs from
	// the device's setpoint.
	StateDirty
)

// String returns the lowercase state name.
func (s SyncState) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateSynced:
		return "synced"
	case StateDirty:
		return "dirty"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SyncState) UnmarshalText(text []byte) error {
	for _, v := range []SyncState{StateBootstrap, StateSynced, StateDirty} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown sync state %q", text)
}

// ChannelState is the per-channel setpoint pair.
type ChannelState struct {
	// Remote is the last setpoint the device confirmed (or that was
	// optimistically committed). It is authoritative.
	Remote float64 `json:"remote"`
	// Pending is the operator-staged setpoint.
	Pending float64   `json:"pending"`
	State   SyncState `json:"state"`
}

// Synced reports whether the staged value matches the device value.
func (c ChannelState) Synced() bool {
	return c.Pending == c.Remote
}

// HasReceivedInitialEcho reports whether the device has confirmed a
// setpoint for this channel since the engine started.
func (c ChannelState) HasReceivedInitialEcho() bool {
	return c.State != StateBootstrap
}
