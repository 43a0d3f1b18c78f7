package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func startSession(t *testing.T, transport Transport, hooks Hooks) *Session {
	t.Helper()
	s := NewSession(SessionConfig{
		TopicRoot:  "bio/v1",
		Channels:   testSpecs,
		BufferSize: 100,
		Hooks:      hooks,
	}, transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return s
}

// flush waits until every event queued so far has been handled. Events are
// processed in order, so a round trip through the dispatcher is a barrier.
func flush(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Edit(ctx, "__barrier__", 0); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("barrier edit error = %v", err)
	}
}

func channelView(t *testing.T, s *Session, ch Channel) ChannelView {
	t.Helper()
	v, ok := s.Snapshot().Channel(ch)
	if !ok {
		t.Fatalf("channel %q missing from snapshot", ch)
	}
	return v
}

func TestSession_InitialSnapshot(t *testing.T) {
	s := NewSession(SessionConfig{TopicRoot: "bio/v1", Channels: testSpecs}, &mockTransport{})

	snap := s.Snapshot()
	if snap.Connectivity != Disconnected {
		t.Errorf("Connectivity = %v, want Disconnected", snap.Connectivity)
	}
	if snap.Readings.DeviceState != DeviceStateUnknown {
		t.Errorf("DeviceState = %q, want Unknown", snap.Readings.DeviceState)
	}
	if len(snap.Channels) != 3 {
		t.Fatalf("len(Channels) = %d, want 3", len(snap.Channels))
	}
	if len(s.Telemetry()) != 0 {
		t.Errorf("Telemetry() = %v, want empty", s.Telemetry())
	}
}

// Echo, operator edit, then commit while connected.
func TestSession_ScenarioEchoEditCommit(t *testing.T) {
	transport := &mockTransport{}
	s := startSession(t, transport, Hooks{})
	ctx := context.Background()

	s.Deliver("bio/v1/set/temp", []byte("36.5"))
	flush(t, s)
	v := channelView(t, s, "temp")
	if v.State.Remote != 36.5 || v.State.Pending != 36.5 || !v.Synced {
		t.Fatalf("after echo: %+v, want remote=pending=36.5 synced", v)
	}

	if err := s.Edit(ctx, "temp", 38.0); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	v = channelView(t, s, "temp")
	if v.State.Pending != 38.0 || v.Synced {
		t.Fatalf("after edit: %+v, want pending=38 not synced", v)
	}

	s.SetConnectivity(Connected)
	cmd, err := s.Commit(ctx, "temp")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	v = channelView(t, s, "temp")
	if v.State.Remote != 38.0 || !v.Synced {
		t.Errorf("after commit: %+v, want remote=38 synced", v)
	}
	published := transport.GetPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if p := published[0]; p.Topic != "bio/v1/set/temp" || string(p.Payload) != "38" || !p.Retained || p.QoS != 1 {
		t.Errorf("published %+v", p)
	}
	if cmd.Payload != "38" {
		t.Errorf("command payload = %q, want 38", cmd.Payload)
	}
}

// Telemetry with a partial channel set.
func TestSession_ScenarioTelemetry(t *testing.T) {
	s := startSession(t, &mockTransport{}, Hooks{})

	s.Deliver("bio/v1/telemetry", []byte(`{"temp":37.2,"ph":6.8}`))
	flush(t, s)

	snap := s.Snapshot()
	if snap.Readings.Values["temp"] != 37.2 || snap.Readings.Values["ph"] != 6.8 {
		t.Errorf("readings = %v", snap.Readings.Values)
	}
	if snap.Readings.DeviceState != "Online" {
		t.Errorf("DeviceState = %q, want Online", snap.Readings.DeviceState)
	}
	samples := s.Telemetry()
	if len(samples) != 1 {
		t.Fatalf("len(Telemetry()) = %d, want 1", len(samples))
	}
	if _, ok := samples[0].Values["rpm"]; ok {
		t.Error("sample has rpm key")
	}
}

// Commit while disconnected.
func TestSession_ScenarioCommitWhileDisconnected(t *testing.T) {
	transport := &mockTransport{}
	s := startSession(t, transport, Hooks{})
	ctx := context.Background()

	if err := s.Edit(ctx, "ph", 6.5); err != nil {
		t.Fatalf("Edit() while disconnected error = %v", err)
	}
	before := channelView(t, s, "ph")

	_, err := s.Commit(ctx, "ph")

	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("Commit() error = %v, want ErrPreconditionFailed", err)
	}
	if n := len(transport.GetPublished()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
	if after := channelView(t, s, "ph"); after.State != before.State {
		t.Errorf("state changed: %+v -> %+v", before.State, after.State)
	}
	if got := s.Snapshot().Stats.CommitsRejected; got != 1 {
		t.Errorf("CommitsRejected = %d, want 1", got)
	}
}

// 105 samples into a 100-sample history.
func TestSession_ScenarioHistoryOverflow(t *testing.T) {
	s := startSession(t, &mockTransport{}, Hooks{})

	for i := 1; i <= 105; i++ {
		s.Deliver("bio/v1/telemetry", []byte(`{"rpm":`+FormatSetpoint(float64(i))+`}`))
	}
	flush(t, s)

	samples := s.Telemetry()
	if len(samples) != 100 {
		t.Fatalf("len(Telemetry()) = %d, want 100", len(samples))
	}
	for i, sample := range samples {
		if want := float64(i + 6); sample.Values["rpm"] != want {
			t.Fatalf("sample %d rpm = %v, want %v", i, sample.Values["rpm"], want)
		}
	}
}

func TestSession_MalformedTelemetryCounted(t *testing.T) {
	s := startSession(t, &mockTransport{}, Hooks{})

	s.Deliver("bio/v1/telemetry", []byte(`{"temp":37.0}`))
	s.Deliver("bio/v1/telemetry", []byte(`{"temp":`))
	s.Deliver("bio/v1/unknown", []byte(`x`))
	flush(t, s)

	snap := s.Snapshot()
	if len(snap.Telemetry) != 1 {
		t.Errorf("len(Telemetry) = %d, want 1", len(snap.Telemetry))
	}
	want := Stats{MessagesRouted: 1, MessagesDropped: 1, MessagesIgnored: 1}
	if snap.Stats != want {
		t.Errorf("Stats = %+v, want %+v", snap.Stats, want)
	}
}

func TestSession_ConnectivityTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []Connectivity
	s := startSession(t, &mockTransport{}, Hooks{
		OnChange: func(snap *Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if len(seen) == 0 || seen[len(seen)-1] != snap.Connectivity {
				seen = append(seen, snap.Connectivity)
			}
		},
	})

	for _, c := range []Connectivity{Connecting, Connected, Connected, Offline, Connected, Disconnected} {
		s.SetConnectivity(c)
	}
	flush(t, s)

	mu.Lock()
	defer mu.Unlock()
	want := []Connectivity{Connecting, Connected, Offline, Connected, Disconnected}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestSession_Hooks(t *testing.T) {
	var mu sync.Mutex
	var samples []TelemetrySample
	var commands []OutboundCommand

	s := startSession(t, &mockTransport{}, Hooks{
		OnSample: func(sample TelemetrySample) {
			mu.Lock()
			defer mu.Unlock()
			samples = append(samples, sample)
		},
		OnCommand: func(cmd OutboundCommand) {
			mu.Lock()
			defer mu.Unlock()
			commands = append(commands, cmd)
		},
	})

	s.Deliver("bio/v1/telemetry", []byte(`{"ph":7.1}`))
	s.SetConnectivity(Connected)
	if _, err := s.Commit(context.Background(), "rpm"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(samples) != 1 || samples[0].Values["ph"] != 7.1 {
		t.Errorf("OnSample got %v", samples)
	}
	if len(commands) != 1 || commands[0].Channel != "rpm" || commands[0].Payload != "100" {
		t.Fatalf("OnCommand got %v", commands)
	}
	if commands[0].ID == "" {
		t.Error("command has no ID")
	}
}

func TestSession_TransportErrorSurfaces(t *testing.T) {
	transport := &mockTransport{}
	transport.SetError(errBrokerDown)
	s := startSession(t, transport, Hooks{})
	s.SetConnectivity(Connected)

	_, err := s.Commit(context.Background(), "temp")

	if !errors.Is(err, ErrTransport) {
		t.Errorf("Commit() error = %v, want ErrTransport", err)
	}
}

func TestSession_ClosedSessionRejectsCalls(t *testing.T) {
	s := NewSession(SessionConfig{TopicRoot: "bio/v1", Channels: testSpecs}, &mockTransport{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := s.Edit(context.Background(), "temp", 30); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Edit() error = %v, want ErrSessionClosed", err)
	}
	// Must not block after shutdown, even past the queue size.
	for i := 0; i < defaultQueueSize+10; i++ {
		s.Deliver("bio/v1/status", []byte("Online"))
	}
}

func TestSession_RunTwice(t *testing.T) {
	s := startSession(t, &mockTransport{}, Hooks{})
	flush(t, s)

	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionRunning) {
		t.Errorf("second Run() error = %v, want ErrSessionRunning", err)
	}
}

func TestSession_EditContextCancelled(t *testing.T) {
	// No dispatcher: the event is queued but never handled.
	s := NewSession(SessionConfig{TopicRoot: "bio/v1", Channels: testSpecs}, &mockTransport{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Edit(ctx, "temp", 30); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Edit() error = %v, want deadline exceeded", err)
	}
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	s := startSession(t, &mockTransport{}, Hooks{})
	s.SetConnectivity(Offline)
	s.Deliver("bio/v1/set/ph", []byte("7"))
	if err := s.Edit(context.Background(), "ph", 6.2); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.Connectivity != Offline {
		t.Errorf("Connectivity = %v, want Offline", got.Connectivity)
	}
	if v, _ := got.Channel("ph"); v.State.State != StateDirty || v.State.Pending != 6.2 {
		t.Errorf("ph = %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"connectivity":"Sleeping"}`), &got); err == nil {
		t.Error("Unmarshal() accepted an unknown connectivity")
	}
}

func TestSession_IgnoredMessagesCountedWithoutChange(t *testing.T) {
	var changes atomic.Int32
	s := startSession(t, &mockTransport{}, Hooks{
		OnChange: func(*Snapshot) { changes.Add(1) },
	})
	flush(t, s)
	before := s.Snapshot()
	base := changes.Load()

	for i := 0; i < 5; i++ {
		s.Deliver("bio/v1/console/bioconsole-abc", []byte(`{"status":"online"}`))
	}
	flush(t, s)

	snap := s.Snapshot()
	if snap.Stats.MessagesIgnored != 5 {
		t.Errorf("MessagesIgnored = %d, want 5", snap.Stats.MessagesIgnored)
	}
	if snap.Seq != before.Seq {
		t.Errorf("Seq = %d, want %d", snap.Seq, before.Seq)
	}
	if got := changes.Load(); got != base {
		t.Errorf("OnChange called %d times for ignored messages", got-base)
	}
}

func TestSession_RunDrainsQueuedEventsOnCancel(t *testing.T) {
	s := NewSession(SessionConfig{TopicRoot: "bio/v1", Channels: testSpecs}, &mockTransport{})
	s.SetConnectivity(Connected)
	s.Deliver("bio/v1/status", []byte("Harvest"))
	s.SetConnectivity(Disconnected)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := s.Snapshot()
	if snap.Connectivity != Disconnected {
		t.Errorf("Connectivity = %v, want Disconnected", snap.Connectivity)
	}
	if snap.Readings.DeviceState != "Harvest" {
		t.Errorf("DeviceState = %q, want Harvest", snap.Readings.DeviceState)
	}
}

func TestSession_CommittableFollowsStateAndConnectivity(t *testing.T) {
	s := startSession(t, &mockTransport{}, Hooks{})
	ctx := context.Background()

	s.SetConnectivity(Connected)
	s.Deliver("bio/v1/set/ph", []byte("7"))
	flush(t, s)
	if channelView(t, s, "ph").Committable {
		t.Error("synced channel is committable")
	}

	if err := s.Edit(ctx, "ph", 6.5); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !channelView(t, s, "ph").Committable {
		t.Error("dirty channel is not committable while connected")
	}

	s.SetConnectivity(Offline)
	flush(t, s)
	if channelView(t, s, "ph").Committable {
		t.Error("dirty channel is committable while offline")
	}

	s.SetConnectivity(Connected)
	flush(t, s)
	if _, err := s.Commit(ctx, "ph"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if channelView(t, s, "ph").Committable {
		t.Error("channel still committable after commit")
	}
}
