package audit

import (
	"context"
	"sync/atomic"
)

// DefaultQueueSize is the buffer used when NewWriter is given size <= 0.
const DefaultQueueSize = 256

// Logger is the logging interface used by Writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer queues entries and writes them serially in the background, so
// request handlers never wait on the audit table. Entries beyond the queue
// size are dropped.
type Writer struct {
	repo    Repository
	ch      chan *Entry
	logger  Logger
	dropped atomic.Int64
}

// NewWriter creates a writer over repo.
func NewWriter(repo Repository, size int, logger Logger) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Writer{repo: repo, ch: make(chan *Entry, size), logger: logger}
}

// Record enqueues entry. It never blocks. A nil Writer ignores the call.
func (w *Writer) Record(entry *Entry) {
	if w == nil {
		return
	}
	select {
	case w.ch <- entry:
	default:
		w.dropped.Add(1)
		w.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (w *Writer) Dropped() int64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// left and returns.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case entry := <-w.ch:
			w.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.ch:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(entry *Entry) {
	// The request context is gone by now; writes outlive it.
	if err := w.repo.Create(context.Background(), entry); err != nil {
		w.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
