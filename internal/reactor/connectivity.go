package reactor

import "fmt"

// Connectivity is the transport state as observed by the console.
type Connectivity int

const (
	// Disconnected is the state before the first connect attempt and after
	// the transport has been closed.
	Disconnected Connectivity = iota
	// Connecting means the initial connection attempt is in flight.
	Connecting
	// Connected means the broker session is up; commits are allowed.
	Connected
	// Offline means an established session was lost and the transport is
	// reconnecting on its own.
	Offline
)

// String returns the display label of c.
func (c Connectivity) String() string {
	switch c {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Offline:
		return "Offline"
	default:
		return fmt.Sprintf("Connectivity(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Connectivity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Connectivity) UnmarshalText(text []byte) error {
	for _, v := range []Connectivity{Disconnected, Connecting, Connected, Offline} {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown connectivity %q", text)
}
