package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/bioconsole/internal/reactor"
)

const (
	defaultRecorderQueue = 128

	// writeTimeout bounds a single insert. Writes are not tied to the Run
	// context so entries queued at shutdown still land.
	writeTimeout = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes audit entries off the caller's goroutine. Record never
// blocks: when the queue is full the entry is dropped and counted.
//
// Record is safe to call from the session dispatcher.
type Recorder struct {
	repo    Repository
	logger  Logger
	queue   chan AuditLog
	dropped atomic.Uint64
	written atomic.Uint64
	done    chan struct{}
}

// NewRecorder returns a recorder writing to repo. A queueSize below 1 uses
// the default.
func NewRecorder(repo Repository, logger Logger, queueSize int) *Recorder {
	if queueSize < 1 {
		queueSize = defaultRecorderQueue
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan AuditLog, queueSize),
		done:   make(chan struct{}),
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// still queued.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Record queues entry for writing.
func (r *Recorder) Record(entry AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		if r.logger != nil {
			r.logger.Warn("audit queue full, entry dropped", "action", entry.Action, "channel", entry.Channel)
		}
	}
}

// RecordCommand records a command accepted by the transport.
func (r *Recorder) RecordCommand(cmd reactor.OutboundCommand, source string) {
	value := cmd.Value
	r.Record(AuditLog{
		Action:    ActionCommit,
		Channel:   string(cmd.Channel),
		Value:     &value,
		Payload:   cmd.Payload,
		Topic:     cmd.BrokerTopic,
		CommandID: cmd.ID,
		Source:    source,
	})
}

// RecordRejected records a commit that did not reach the transport.
func (r *Recorder) RecordRejected(ch reactor.Channel, source string, cause error) {
	entry := AuditLog{Action: ActionCommitRejected, Channel: string(ch), Source: source}
	if cause != nil {
		entry.Error = cause.Error()
	}
	r.Record(entry)
}

// RecordEdit records an accepted operator edit.
func (r *Recorder) RecordEdit(ch reactor.Channel, value float64, source string) {
	r.Record(AuditLog{Action: ActionEdit, Channel: string(ch), Value: &value, Source: source})
}

// Dropped returns the number of entries discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of entries stored.
func (r *Recorder) Written() uint64 { return r.written.Load() }

func (r *Recorder) write(entry AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &entry); err != nil {
		if r.logger != nil {
			r.logger.Error("writing audit log", "action", entry.Action, "channel", entry.Channel, "error", err)
		}
		return
	}
	r.written.Add(1)
}

func (r *Recorder) drain() {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		default:
			return
		}
	}
}
