package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder is implemented by Logger and NoopLogger.
type Recorder interface {
	Write(entry *Entry)
	Close() error
}

// Logger provides async buffered writes to a Store. Entries are collected
// in a channel and flushed when a batch fills up or the flush interval
// elapses. Write never blocks the calling request.
type Logger struct {
	store   Store
	config  Config
	logger  *slog.Logger
	buffer  chan *Entry
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex // held shared by Write, exclusively by Close
	closed  bool
	dropped atomic.Int64
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(store Store, cfg Config, logger *slog.Logger) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Logger{
		store:  store,
		config: cfg,
		logger: logger,
		buffer: make(chan *Entry, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues an entry. When the buffer is full or the logger is closed
// the entry is dropped.
func (l *Logger) Write(entry *Entry) {
	if entry == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		l.dropped.Add(1)
		l.logger.Warn("usage buffer full, dropping entry",
			"request_id", entry.RequestID,
			"provider", entry.Provider,
		)
	}
}

// Dropped returns the number of entries discarded because the buffer was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close flushes remaining entries and closes the store. It is idempotent.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()

	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, BatchFlushThreshold)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, BatchFlushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, BatchFlushThreshold)
			}

		case <-l.done:
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				l.logger.Error("failed to flush usage store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		l.logger.Error("failed to write usage batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards entries; used when usage tracking is disabled.
type NoopLogger struct{}

// Write does nothing
func (NoopLogger) Write(*Entry) {}

// Close does nothing
func (NoopLogger) Close() error { return nil }
