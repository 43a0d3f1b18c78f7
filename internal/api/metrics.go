package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/bioconsole/internal/reactor"
)

const bytesPerMB = 1024 * 1024

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Session       SessionMetrics   `json:"session"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains broker connection state.
type MQTTMetrics struct {
	Connected     bool                 `json:"connected"`
	Connectivity  reactor.Connectivity `json:"connectivity"`
	Subscriptions int                  `json:"subscriptions"`
}

// SessionMetrics contains dispatcher counters and buffer occupancy.
type SessionMetrics struct {
	reactor.Stats
	TelemetrySamples int    `json:"telemetry_samples"`
	ChannelsDirty    int    `json:"channels_dirty"`
	Seq              uint64 `json:"seq"`
}

// DatabaseMetrics contains connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.session.Snapshot()

	dirty := 0
	for _, v := range snap.Channels {
		if v.State.State == reactor.StateDirty {
			dirty++
		}
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.Hub().ClientCount()},
		MQTT:      MQTTMetrics{Connectivity: snap.Connectivity},
		Session: SessionMetrics{
			Stats:            snap.Stats,
			TelemetrySamples: len(snap.Telemetry),
			ChannelsDirty:    dirty,
			Seq:              snap.Seq,
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
		metrics.MQTT.Subscriptions = s.mqtt.SubscriptionCount()
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
