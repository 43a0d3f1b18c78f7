package reactor

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RouteKind classifies what the router did with a message.
type RouteKind int

const (
	// RouteIgnored marks a topic outside the recognised set, or a setpoint
	// echo for a channel that is not configured.
	RouteIgnored RouteKind = iota
	// RouteDropped marks a recognised topic whose payload could not be parsed.
	RouteDropped
	// RouteStatus marks an accepted device lifecycle message.
	RouteStatus
	// RouteTelemetry marks an accepted telemetry sample.
	RouteTelemetry
	// RouteEcho marks an accepted setpoint echo.
	RouteEcho
)

// String returns the lowercase kind name.
func (k RouteKind) String() string {
	switch k {
	case RouteIgnored:
		return "ignored"
	case RouteDropped:
		return "dropped"
	case RouteStatus:
		return "status"
	case RouteTelemetry:
		return "telemetry"
	case RouteEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// RouteResult describes the outcome of routing one message.
type RouteResult struct {
	Kind    RouteKind
	Channel Channel          // set for RouteEcho
	Sample  *TelemetrySample // set for RouteTelemetry
}

// Accepted reports whether the message changed console state.
func (r RouteResult) Accepted() bool {
	return r.Kind == RouteStatus || r.Kind == RouteTelemetry || r.Kind == RouteEcho
}

// Router maps inbound topics onto the engine, the telemetry history and the
// readings. It is the only writer of the history and the readings.
//
// Router is not safe for concurrent use.
type Router struct {
	ns       Namespace
	engine   *Engine
	history  *RingBuffer[TelemetrySample]
	readings *Readings
	logger   Logger
	now      func() time.Time
}

// NewRouter creates a router writing into the given engine, history and
// readings.
func NewRouter(ns Namespace, engine *Engine, history *RingBuffer[TelemetrySample], readings *Readings, logger Logger) *Router {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Router{
		ns:       ns,
		engine:   engine,
		history:  history,
		readings: readings,
		logger:   logger,
		now:      time.Now,
	}
}

// Route handles one message. Malformed payloads are dropped without any
// state change; unknown topics and channels are ignored.
func (r *Router) Route(topic string, payload []byte) RouteResult {
	rel, ok := r.ns.Relative(topic)
	if !ok {
		return RouteResult{Kind: RouteIgnored}
	}

	var res RouteResult
	switch {
	case rel == topicStatus:
		res = r.routeStatus(payload)
	case rel == topicTelemetry:
		res = r.routeTelemetry(payload)
	case strings.HasPrefix(rel, topicSetpointPrefix):
		res = r.routeEcho(Channel(strings.TrimPrefix(rel, topicSetpointPrefix)), payload)
	default:
		res = RouteResult{Kind: RouteIgnored}
	}

	if res.Accepted() {
		r.readings.LastUpdate = r.now()
	}
	return res
}

func (r *Router) routeStatus(payload []byte) RouteResult {
	r.readings.DeviceState = string(payload)
	return RouteResult{Kind: RouteStatus}
}

func (r *Router) routeTelemetry(payload []byte) RouteResult {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		r.logger.Warn("dropping malformed telemetry", "error", err, "size", len(payload))
		return RouteResult{Kind: RouteDropped}
	}

	// Parse every known key before touching state so a bad value cannot
	// leave a half-applied sample behind.
	values := make(map[Channel]float64, len(raw))
	for key, msg := range raw {
		ch := Channel(key)
		if _, known := r.engine.Spec(ch); !known {
			continue
		}
		var v *float64
		if err := json.Unmarshal(msg, &v); err != nil || v == nil {
			r.logger.Warn("dropping telemetry with non-numeric reading", "channel", key, "value", string(msg))
			return RouteResult{Kind: RouteDropped}
		}
		values[ch] = *v
	}

	for ch, v := range values {
		r.readings.Values[ch] = v
	}
	r.readings.DeviceState = DeviceStateOnline

	sample := TelemetrySample{Timestamp: r.now(), Values: values}
	r.history.Append(sample)
	return RouteResult{Kind: RouteTelemetry, Sample: &sample}
}

func (r *Router) routeEcho(ch Channel, payload []byte) RouteResult {
	spec, known := r.engine.Spec(ch)
	if !known {
		return RouteResult{Kind: RouteIgnored}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		r.logger.Debug("ignoring unparseable setpoint echo", "channel", ch, "payload", string(payload))
		return RouteResult{Kind: RouteDropped}
	}

	if err := r.engine.OnDeviceEcho(ch, spec.normalize(v)); err != nil {
		return RouteResult{Kind: RouteIgnored}
	}
	return RouteResult{Kind: RouteEcho, Channel: ch}
}
