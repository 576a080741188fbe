package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the Writer queue length used when none is given.
const DefaultQueueSize = 256

// Writer errors.
var (
	ErrQueueFull     = errors.New("audit queue full")
	ErrWriterClosed  = errors.New("audit writer closed")
	errWriterStarted = errors.New("audit writer already started")
)

// Logger is the logging surface used by the Writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer queues audit entries and writes them to a Repository one at a
// time. Create never blocks: the monitor records zone transitions and
// dispatch outcomes from its event path, and the API records sign-ins
// from request handlers. When the queue is full the entry is dropped and
// counted.
//
// Writer itself satisfies Repository; List reads straight through.
type Writer struct {
	repo   Repository
	queue  chan *AuditLog
	now    func() time.Time
	logger Logger

	dropped atomic.Uint64

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewWriter creates a Writer over repo. size <= 0 selects DefaultQueueSize.
func NewWriter(repo Repository, size int) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Writer{
		repo:   repo,
		queue:  make(chan *AuditLog, size),
		now:    time.Now,
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for write failures and drops.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// Start launches the background writer.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if w.started {
		return errWriterStarted
	}
	w.started = true
	go w.run()
	return nil
}

// Create stamps the entry with the current time and queues it. The
// context is not used; the write happens later under the Writer's own.
func (w *Writer) Create(_ context.Context, log *AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = w.now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.queue <- log:
		return nil
	default:
		w.dropped.Add(1)
		w.logger.Warn("audit queue full, dropping entry",
			"action", log.Action,
			"entity_type", log.EntityType,
			"source", log.Source,
		)
		return ErrQueueFull
	}
}

// List reads from the underlying repository. Entries still queued are
// not included.
func (w *Writer) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return w.repo.List(ctx, filter)
}

// Dropped returns how many entries were discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops accepting entries, writes everything already queued and
// waits for the background writer to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	started := w.started
	close(w.queue)
	w.mu.Unlock()

	if !started {
		w.run()
	}
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for entry := range w.queue {
		if err := w.repo.Create(context.Background(), entry); err != nil {
			w.logger.Error("audit log write failed",
				"action", entry.Action,
				"entity_type", entry.EntityType,
				"error", err,
			)
		}
	}
}
