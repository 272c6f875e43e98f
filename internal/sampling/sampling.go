// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fincore/backoffice/internal/metrics"
)

// Service samples the wall-clock duration of operations at a fixed
// per-key ratio. The operation always runs; only the measurement is
// conditional.
type Service interface {
	// Sample executes op and, on every Nth invocation for key,
	// records its duration. op's error is returned unchanged.
	Sample(key string, op func() error) error
	// Reset clears all counters and recorded samples.
	Reset()
	// Snapshot returns a copy of the recorded samples per key.
	Snapshot() map[string][]time.Duration
}

type sampler struct {
	rate   int64
	logger *slog.Logger

	counters sync.Map // key -> *atomic.Int64

	mu      sync.Mutex
	samples map[string][]time.Duration
}

// New returns a Service sampling one in rate invocations per key. A
// rate below 1 disables sampling entirely and yields the no-op
// variant.
func New(rate int64, logger *slog.Logger) Service {
	if rate < 1 {
		return Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &sampler{
		rate:    rate,
		logger:  logger,
		samples: make(map[string][]time.Duration),
	}
}

func (s *sampler) Sample(key string, op func() error) error {
	n := s.counter(key).Add(1)
	if n%s.rate != 0 {
		return op()
	}

	started := time.Now()
	err := op()
	s.record(key, time.Since(started))
	return err
}

func (s *sampler) counter(key string) *atomic.Int64 {
	if c, ok := s.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := s.counters.LoadOrStore(key, &atomic.Int64{})
	return c.(*atomic.Int64)
}

// record must never affect the sampled operation's outcome.
func (s *sampler) record(key string, d time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sample recording failed", "key", key, "panic", r)
		}
	}()

	s.mu.Lock()
	s.samples[key] = append(s.samples[key], d)
	s.mu.Unlock()

	metrics.ObserveSampledDuration(key, d)
}

func (s *sampler) Reset() {
	s.counters.Range(func(key, _ any) bool {
		s.counters.Delete(key)
		return true
	})

	s.mu.Lock()
	s.samples = make(map[string][]time.Duration)
	s.mu.Unlock()
}

func (s *sampler) Snapshot() map[string][]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]time.Duration, len(s.samples))
	for key, durations := range s.samples {
		out[key] = append([]time.Duration(nil), durations...)
	}
	return out
}

// Noop runs operations without any measurement overhead. External
// behavior is identical to the sampling variant.
type Noop struct{}

func (Noop) Sample(_ string, op func() error) error { return op() }

func (Noop) Reset() {}

func (Noop) Snapshot() map[string][]time.Duration { return nil }
