package reactor

import (
	"maps"
	"time"
)

// Device lifecycle labels set by the console itself. A status message may
// set any other text.
const (
	DeviceStateUnknown = "Unknown"
	DeviceStateOnline  = "Online"
)

// TelemetrySample is one telemetry message as received. Values holds only the
// channels the message reported. A sample is never modified after it has
// been appended to the history.
type TelemetrySample struct {
	Timestamp time.Time           `json:"timestamp"`
	Values    map[Channel]float64 `json:"values"`
}

// Readings holds the latest sensor value of every reported channel and the
// device lifecycle label.
type Readings struct {
	Values      map[Channel]float64 `json:"values"`
	DeviceState string              `json:"device_state"`
	// LastUpdate is the arrival time of the last accepted message. It is
	// informational only.
	LastUpdate time.Time `json:"last_update"`
}

func newReadings() Readings {
	return Readings{
		Values:      make(map[Channel]float64),
		DeviceState: DeviceStateUnknown,
	}
}

// clone returns a deep copy safe to hand to readers.
func (r Readings) clone() Readings {
	r.Values = maps.Clone(r.Values)
	return r
}
