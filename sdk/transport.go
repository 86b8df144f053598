package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xray-io/xray/apitypes"
)

const (
	// minDequeueWait bounds the dequeue timeout from below so a worker that
	// woke up just before the deadline still polls the queue once.
	minDequeueWait = 100 * time.Millisecond

	// workerErrorBackoff is the sleep after a failed ship, avoiding tight
	// failure loops against a down server.
	workerErrorBackoff = 1 * time.Second
)

type (
	// Sink accepts events for delivery. Implemented by Transport; tests
	// substitute recording sinks.
	Sink interface {
		// Send enqueues an event without blocking. Returns false when the
		// event was dropped (queue full or transport stopped).
		Send(event apitypes.Event) bool
	}

	// Transport ships events to the ingest API: a bounded FIFO queue, one
	// background worker that batches by size or deadline, and a best-effort
	// HTTP POST per batch.
	//
	// All failures are logged and swallowed. The instrumented program never
	// blocks on, and never sees an error from, the transport.
	Transport struct {
		queue  chan apitypes.Event
		client *http.Client
		config *Config
		logger *slog.Logger

		started    atomic.Bool
		stopped    atomic.Bool
		shutdownCh chan struct{}
		workerDone chan struct{}
		closeOnce  sync.Once
	}
)

var _ Sink = (*Transport)(nil)

// NewTransport creates a transport with a queue of cfg.BufferSize events.
// The background worker does not run until Start is called; events sent
// before Start simply buffer in the queue.
func NewTransport(cfg *Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		queue: make(chan apitypes.Event, cfg.BufferSize),
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		config:     cfg,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		workerDone: make(chan struct{}),
	}
}

// Start launches the background worker. Calling Start twice is a no-op.
func (t *Transport) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	go t.worker()
}

// Send enqueues an event without blocking the caller.
//
// Returns false and logs a warning when the transport has been shut down or
// the queue is full; the event is dropped. Never panics.
func (t *Transport) Send(event apitypes.Event) bool {
	if t.stopped.Load() {
		t.logger.Warn("transport stopped, dropping event",
			slog.String("event_type", event.Kind()),
		)

		return false
	}

	select {
	case t.queue <- event:
		return true
	default:
		t.logger.Warn("transport queue full, dropping event",
			slog.String("event_type", event.Kind()),
			slog.Int("buffer_size", t.config.BufferSize),
		)

		return false
	}
}

// QueueLen reports the number of events waiting in the queue.
func (t *Transport) QueueLen() int {
	return len(t.queue)
}

// IsStarted reports whether the background worker has been launched.
func (t *Transport) IsStarted() bool {
	return t.started.Load() && !t.stopped.Load()
}

// worker repeatedly collects and ships batches until shutdown is signaled.
// Ship errors are logged and followed by a short sleep.
func (t *Transport) worker() {
	defer close(t.workerDone)

	for {
		batch, shuttingDown := t.collectBatch()

		if len(batch) > 0 {
			if err := t.post(context.Background(), batch); err != nil {
				t.logger.Warn("failed to ship batch, dropping",
					slog.Int("batch_size", len(batch)),
					slog.String("error", err.Error()),
				)

				if !shuttingDown {
					time.Sleep(workerErrorBackoff)
				}
			}
		}

		if shuttingDown {
			return
		}
	}
}

// collectBatch dequeues until BatchSize events accumulate or FlushInterval
// elapses, whichever comes first. The second return value is true when the
// shutdown signal fired.
func (t *Transport) collectBatch() ([]apitypes.Event, bool) {
	deadline := time.Now().Add(t.config.FlushInterval)
	batch := make([]apitypes.Event, 0, t.config.BatchSize)

	for len(batch) < t.config.BatchSize {
		wait := time.Until(deadline)
		if wait < minDequeueWait {
			wait = minDequeueWait
		}

		timer := time.NewTimer(wait)

		select {
		case event := <-t.queue:
			timer.Stop()

			batch = append(batch, event)

		case <-timer.C:
			if !time.Now().Before(deadline) {
				return batch, false
			}

		case <-t.shutdownCh:
			timer.Stop()

			return batch, true
		}

		if !time.Now().Before(deadline) {
			return batch, false
		}
	}

	return batch, false
}

// post ships one batch as a JSON array. A missing BaseURL skips the POST
// (the transport still drains its queue). Any HTTP status >= 400 is an
// error; the response body is otherwise discarded.
func (t *Transport) post(ctx context.Context, batch []apitypes.Event) error {
	if t.config.BaseURL == "" {
		return nil
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.IngestURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}

	return nil
}

// Shutdown drains the transport and stops the worker.
//
// Sequence: signal the worker and wait up to timeout for it to finish its
// current batch; mark the transport stopped so racing producers cannot
// re-insert; drain the queue into a final batch and attempt one best-effort
// POST; release HTTP resources. After Shutdown returns, Send drops.
func (t *Transport) Shutdown(timeout time.Duration) {
	t.closeOnce.Do(func() { close(t.shutdownCh) })

	if t.started.Load() {
		select {
		case <-t.workerDone:
		case <-time.After(timeout):
			t.logger.Warn("transport worker did not stop within timeout",
				slog.Duration("timeout", timeout),
			)
		}
	}

	// Stop before draining: a producer that wins a race after this point
	// gets a drop, not a lost-forever event sitting in a dead queue.
	t.stopped.Store(true)

	final := t.drain()
	if len(final) > 0 {
		if err := t.post(context.Background(), final); err != nil {
			t.logger.Warn("failed to ship final batch, dropping",
				slog.Int("batch_size", len(final)),
				slog.String("error", err.Error()),
			)
		}
	}

	t.client.CloseIdleConnections()
}

// drain empties the queue without waiting.
func (t *Transport) drain() []apitypes.Event {
	var events []apitypes.Event

	for {
		select {
		case event := <-t.queue:
			events = append(events, event)
		default:
			return events
		}
	}
}
