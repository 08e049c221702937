package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultWriterCapacity = 256
	writeAttempts         = 3
	writeRetryStep        = 300 * time.Millisecond
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serializes journal writes on one goroutine so bus subscribers
// never block on sqlite.
type WriterQueue struct {
	logger  *slog.Logger
	queue   chan writeCmd
	pending sync.WaitGroup
	done    chan struct{}
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = defaultWriterCapacity
	}
	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
		done:   make(chan struct{}),
	}
}

// Enqueue schedules fn. Commands run in enqueue order while the buffer has
// room; overflow is handed to a goroutine and may be reordered.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	cmd := writeCmd{name: name, fn: fn}
	w.pending.Add(1)
	select {
	case w.queue <- cmd:
	default:
		w.logger.Warn("journal write queue full", "cmd", name)
		go func() {
			select {
			case w.queue <- cmd:
			case <-w.done:
				w.pending.Done()
			}
		}()
	}
}

// Start runs the queue until ctx is cancelled.
func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.drop()
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
				w.pending.Done()
			}
		}
	}()
}

// Flush blocks until every command enqueued so far has run or been dropped.
func (w *WriterQueue) Flush() {
	w.pending.Wait()
}

func (w *WriterQueue) drop() {
	for {
		select {
		case cmd := <-w.queue:
			w.logger.Debug("dropping journal write on shutdown", "cmd", cmd.name)
			w.pending.Done()
		default:
			return
		}
	}
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err := cmd.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("journal write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
		if attempt == writeAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * writeRetryStep):
		}
	}
}
