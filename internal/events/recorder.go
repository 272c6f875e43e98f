// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fincore/backoffice/internal/domain"
)

// Notifier delivers business events to their downstream consumers
// (event store, message bus). Implementations must tolerate batches.
type Notifier interface {
	Notify(ctx context.Context, events []domain.BusinessEvent) error
}

// Recorder records business events raised during one unit of work.
//
// In pass-through mode every event is delivered immediately. In
// buffered mode (used for close-of-business runs) events are held and
// emitted in aggregate by Flush, reducing event-bus pressure during
// large batch runs. Reset discards buffered events so a failed run
// never leaks partial events.
type Recorder struct {
	notifier Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	buffering bool
	buffer    []domain.BusinessEvent
}

func NewRecorder(notifier Notifier, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		notifier: notifier,
		logger:   logger,
	}
}

// Record captures one event. Delivery failures in pass-through mode
// propagate to the caller; buffered events are validated at Flush.
func (r *Recorder) Record(ctx context.Context, ev domain.BusinessEvent) error {
	r.mu.Lock()
	if r.buffering {
		r.buffer = append(r.buffer, ev)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if r.notifier == nil {
		return nil
	}
	return r.notifier.Notify(ctx, []domain.BusinessEvent{ev})
}

// StartBuffering switches the recorder into buffered mode.
func (r *Recorder) StartBuffering() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffering = true
}

// Flush delivers all buffered events in one aggregate batch and clears
// the buffer. The recorder stays in buffered mode until StopBuffering.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(pending) == 0 || r.notifier == nil {
		return nil
	}

	if err := r.notifier.Notify(ctx, pending); err != nil {
		r.logger.Error("business event flush failed",
			"events", len(pending),
			"error", err,
		)
		return err
	}

	return nil
}

// Reset discards all buffered events without delivering them.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) > 0 {
		r.logger.Warn("discarding buffered business events", "events", len(r.buffer))
	}
	r.buffer = nil
}

// StopBuffering leaves buffered mode, discarding anything still held.
func (r *Recorder) StopBuffering() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffering = false
	r.buffer = nil
}

// Buffered returns the number of events currently held.
func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.buffer)
}

type recorderContextKey struct{}

var ctxRecorderKey recorderContextKey

// WithRecorder places a run-scoped recorder on the context so business
// steps and their collaborators can raise events during the run.
func WithRecorder(ctx context.Context, rec *Recorder) context.Context {
	return context.WithValue(ctx, ctxRecorderKey, rec)
}

func RecorderFrom(ctx context.Context) (*Recorder, bool) {
	rec, ok := ctx.Value(ctxRecorderKey).(*Recorder)
	return rec, ok && rec != nil
}
