package reactor

import (
	"context"
	"sync/atomic"
	"time"
)

// defaultQueueSize bounds the number of events waiting for the dispatcher.
const defaultQueueSize = 256

// Logger is the logging interface used by this package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Hooks are called from the dispatcher goroutine after state has changed.
// They must return quickly and must not call back into the session.
type Hooks struct {
	// OnChange receives every new snapshot.
	OnChange func(snap *Snapshot)
	// OnSample receives every telemetry sample added to the history.
	OnSample func(sample TelemetrySample)
	// OnCommand receives every command handed to the transport.
	OnCommand func(cmd OutboundCommand)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	TopicRoot  string
	Channels   []ChannelSpec
	BufferSize int
	QueueSize  int
	Logger     Logger
	Hooks      Hooks
}

// Stats counts dispatcher activity since the session started.
type Stats struct {
	MessagesRouted  uint64 `json:"messages_routed"`
	MessagesDropped uint64 `json:"messages_dropped"`
	MessagesIgnored uint64 `json:"messages_ignored"`
	CommandsSent    uint64 `json:"commands_sent"`
	CommitsRejected uint64 `json:"commits_rejected"`
}

// ChannelView pairs a channel's description with its current state.
type ChannelView struct {
	Spec                ChannelSpec  `json:"spec"`
	State               ChannelState `json:"setpoint"`
	Synced              bool         `json:"synced"`
	InitialEchoReceived bool         `json:"initial_echo_received"`
	// Committable is set when the staged value differs from the device
	// value and the broker is connected.
	Committable         bool         `json:"committable"`
}

// Snapshot is an immutable view of the whole console state. Readers must
// not modify it.
type Snapshot struct {
	Seq          uint64            `json:"seq"`
	Channels     []ChannelView     `json:"channels"`
	Readings     Readings          `json:"readings"`
	Connectivity Connectivity      `json:"connectivity"`
	Telemetry    []TelemetrySample `json:"-"`
	Stats        Stats             `json:"stats"`
	TakenAt      time.Time         `json:"taken_at"`
}

// Channel returns the view of ch.
func (s *Snapshot) Channel(ch Channel) (ChannelView, bool) {
	for _, v := range s.Channels {
		if v.Spec.Name == ch {
			return v, true
		}
	}
	return ChannelView{}, false
}

type eventKind int

const (
	evMessage eventKind = iota
	evConnectivity
	evEdit
	evCommit
)

type event struct {
	kind    eventKind
	topic   string
	payload []byte
	conn    Connectivity
	channel Channel
	value   float64
	reply   chan reply
}

type reply struct {
	cmd OutboundCommand
	err error
}

// Session owns all console state for one device and serialises every
// mutation through a single dispatcher goroutine started by Run.
//
// Deliver, SetConnectivity, Edit, Commit and Snapshot are safe for
// concurrent use.
type Session struct {
	ns       Namespace
	engine   *Engine
	history  *RingBuffer[TelemetrySample]
	readings Readings
	router   *Router
	emitter  *Emitter
	logger   Logger
	hooks    Hooks

	// Owned by the dispatcher.
	conn      Connectivity
	stats     Stats
	seq       uint64
	telemetry []TelemetrySample

	events  chan event
	done    chan struct{}
	running atomic.Bool
	snap    atomic.Pointer[Snapshot]
}

// NewSession creates a session with every channel at its default setpoint,
// empty readings and connectivity Disconnected.
func NewSession(cfg SessionConfig, transport Transport) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	queue := cfg.QueueSize
	if queue < 1 {
		queue = defaultQueueSize
	}

	s := &Session{
		ns:       NewNamespace(cfg.TopicRoot),
		engine:   NewEngine(cfg.Channels),
		history:  NewRingBuffer[TelemetrySample](cfg.BufferSize),
		readings: newReadings(),
		logger:   logger,
		hooks:    cfg.Hooks,
		conn:     Disconnected,
		events:   make(chan event, queue),
		done:     make(chan struct{}),
	}
	s.router = NewRouter(s.ns, s.engine, s.history, &s.readings, logger)
	s.emitter = NewEmitter(s.ns, s.engine, transport)
	s.telemetry = []TelemetrySample{}
	s.snap.Store(s.buildSnapshot())
	return s
}

// Namespace returns the topic namespace of the session.
func (s *Session) Namespace() Namespace { return s.ns }

// Run processes events until ctx is cancelled, then handles whatever is
// still queued and returns. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer close(s.done)

	s.logger.Info("session dispatcher started",
		"topic_root", s.ns.Root(),
		"channels", len(s.engine.order),
		"history_capacity", s.history.Cap(),
	)

	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.logger.Info("session dispatcher stopped")
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// drain handles the events already queued when Run was cancelled, so a
// final transition such as Disconnected is still applied.
func (s *Session) drain() {
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		default:
			return
		}
	}
}

// Deliver queues an inbound broker message. It blocks only while the queue
// is full and returns immediately once the session has stopped.
func (s *Session) Deliver(topic string, payload []byte) {
	s.enqueue(event{kind: evMessage, topic: topic, payload: payload})
}

// SetConnectivity queues a transport state transition.
func (s *Session) SetConnectivity(c Connectivity) {
	s.enqueue(event{kind: evConnectivity, conn: c})
}

// Edit stages value as the pending setpoint of ch. The snapshot reflects
// the edit by the time Edit returns.
func (s *Session) Edit(ctx context.Context, ch Channel, value float64) error {
	r, err := s.call(ctx, event{kind: evEdit, channel: ch, value: value})
	if err != nil {
		return err
	}
	return r.err
}

// Commit publishes the pending setpoint of ch. It returns once the command
// has been handed to the transport; delivery is not awaited.
func (s *Session) Commit(ctx context.Context, ch Channel) (OutboundCommand, error) {
	r, err := s.call(ctx, event{kind: evCommit, channel: ch})
	if err != nil {
		return OutboundCommand{}, err
	}
	return r.cmd, r.err
}

// Snapshot returns the latest immutable state view.
func (s *Session) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Telemetry returns the buffered samples, oldest first.
func (s *Session) Telemetry() []TelemetrySample {
	return s.snap.Load().Telemetry
}

func (s *Session) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) call(ctx context.Context, ev event) (reply, error) {
	ev.reply = make(chan reply, 1)

	select {
	case s.events <- ev:
	case <-s.done:
		return reply{}, ErrSessionClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case r := <-ev.reply:
		return r, nil
	case <-s.done:
		return reply{}, ErrSessionClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// handle applies one event. It runs on the dispatcher goroutine only.
func (s *Session) handle(ev event) {
	switch ev.kind {
	case evMessage:
		s.handleMessage(ev.topic, ev.payload)
	case evConnectivity:
		s.handleConnectivity(ev.conn)
	case evEdit:
		err := s.engine.OnOperatorEdit(ev.channel, ev.value)
		if err == nil {
			s.publish()
		}
		ev.reply <- reply{err: err}
	case evCommit:
		s.handleCommit(ev)
	}
}

func (s *Session) handleMessage(topic string, payload []byte) {
	res := s.router.Route(topic, payload)

	switch res.Kind {
	case RouteIgnored:
		s.stats.MessagesIgnored++
		s.refreshStats()
		return
	case RouteDropped:
		s.stats.MessagesDropped++
		s.publish()
		return
	}

	s.stats.MessagesRouted++
	if res.Sample != nil {
		s.telemetry = s.history.Snapshot()
		if s.hooks.OnSample != nil {
			s.hooks.OnSample(*res.Sample)
		}
	}
	s.publish()
}

func (s *Session) handleConnectivity(c Connectivity) {
	if c == s.conn {
		return
	}
	s.logger.Info("connectivity changed", "from", s.conn.String(), "to", c.String())
	s.conn = c
	s.publish()
}

func (s *Session) handleCommit(ev event) {
	cmd, err := s.emitter.Commit(ev.channel, s.conn)
	// Reply after the snapshot is stored so callers observe their change.
	defer func() { ev.reply <- reply{cmd: cmd, err: err} }()

	if err != nil {
		s.stats.CommitsRejected++
		s.logger.Warn("commit rejected", "channel", ev.channel, "error", err)
		s.publish()
		return
	}

	s.stats.CommandsSent++
	s.logger.Info("setpoint committed",
		"channel", cmd.Channel,
		"value", cmd.Payload,
		"topic", cmd.BrokerTopic,
	)
	if s.hooks.OnCommand != nil {
		s.hooks.OnCommand(cmd)
	}
	s.publish()
}

// publish stores a fresh snapshot and notifies OnChange.
func (s *Session) publish() {
	snap := s.buildSnapshot()
	s.snap.Store(snap)

	if s.hooks.OnChange != nil {
		s.hooks.OnChange(snap)
	}
}

// refreshStats replaces the stored snapshot with a copy carrying the current
// counters. Nothing renderable changed, so OnChange is not called.
func (s *Session) refreshStats() {
	next := *s.snap.Load()
	next.Stats = s.stats
	s.snap.Store(&next)
}

func (s *Session) buildSnapshot() *Snapshot {
	s.seq++
	snap := &Snapshot{
		Seq:          s.seq,
		Channels:     make([]ChannelView, 0, len(s.engine.order)),
		Readings:     s.readings.clone(),
		Connectivity: s.conn,
		Telemetry:    s.telemetry,
		Stats:        s.stats,
		TakenAt:      time.Now(),
	}
	for _, ch := range s.engine.order {
		st := *s.engine.states[ch]
		snap.Channels = append(snap.Channels, ChannelView{
			Spec:                s.engine.specs[ch],
			State:               st,
			Synced:              st.Synced(),
			InitialEchoReceived: st.HasReceivedInitialEcho(),
			Committable:         !st.Synced() && s.conn == Connected,
		})
	}
	return snap
}
