package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/bioconsole/internal/reactor"
)

// Measurement names.
const (
	MeasurementTelemetry = "telemetry"
	MeasurementCommand   = "setpoint_command"
	MeasurementStats     = "console_stats"
)

// WriteSample writes one telemetry sample as a point with a field per
// reported channel. Samples without values are skipped since a point
// needs at least one field.
func (c *Client) WriteSample(sample reactor.TelemetrySample) {
	if !c.IsConnected() || len(sample.Values) == 0 {
		return
	}

	fields := make(map[string]any, len(sample.Values))
	for ch, v := range sample.Values {
		fields[string(ch)] = v
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementTelemetry,
		map[string]string{"device": c.device},
		fields,
		sample.Timestamp,
	))
}

// WriteCommand records a setpoint command handed to the broker.
func (c *Client) WriteCommand(cmd reactor.OutboundCommand) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"device":  c.device,
			"channel": string(cmd.Channel),
		},
		map[string]any{
			"value":      cmd.Value,
			"command_id": cmd.ID,
		},
		time.Now(),
	))
}

// WritePoint writes an arbitrary point tagged with the device.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	all["device"] = c.device

	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, ts))
}

// WriteStats records the dispatcher counters and buffer occupancy of snap,
// tagged with the connectivity at the time.
func (c *Client) WriteStats(snap *reactor.Snapshot) {
	if snap == nil {
		return
	}

	c.WritePoint(
		MeasurementStats,
		map[string]string{"connectivity": snap.Connectivity.String()},
		map[string]any{
			"messages_routed":   int64(snap.Stats.MessagesRouted),
			"messages_dropped":  int64(snap.Stats.MessagesDropped),
			"messages_ignored":  int64(snap.Stats.MessagesIgnored),
			"commands_sent":     int64(snap.Stats.CommandsSent),
			"commits_rejected":  int64(snap.Stats.CommitsRejected),
			"telemetry_samples": len(snap.Telemetry),
		},
		time.Now(),
	)
}

// RunStatsWriter writes the snapshot returned by source every interval
// until ctx is cancelled. A non-positive interval uses the flush interval.
func (c *Client) RunStatsWriter(ctx context.Context, interval time.Duration, source func() *reactor.Snapshot) {
	if interval <= 0 {
		flush := c.cfg.FlushInterval
		if flush <= 0 {
			flush = defaultFlushInterval
		}
		interval = time.Duration(flush) * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.WriteStats(source())
		}
	}
}
