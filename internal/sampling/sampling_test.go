// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"errors"
	"sync"
	"testing"
)

func TestSamplingRatio(t *testing.T) {
	s := New(5, nil)

	executions := 0
	for i := 0; i < 5; i++ {
		if err := s.Sample("loan.cob", func() error {
			executions++
			return nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if executions != 5 {
		t.Fatalf("expected op executed 5 times, got %d", executions)
	}

	snap := s.Snapshot()
	if len(snap["loan.cob"]) != 1 {
		t.Fatalf("expected exactly 1 recorded sample, got %d", len(snap["loan.cob"]))
	}
}

func TestSamplingCountersArePerKey(t *testing.T) {
	s := New(2, nil)

	_ = s.Sample("a", func() error { return nil })
	_ = s.Sample("b", func() error { return nil })

	if snap := s.Snapshot(); len(snap["a"]) != 0 || len(snap["b"]) != 0 {
		t.Fatalf("expected no samples yet, got %v", snap)
	}

	_ = s.Sample("a", func() error { return nil })

	snap := s.Snapshot()
	if len(snap["a"]) != 1 {
		t.Fatalf("expected 1 sample for key a, got %d", len(snap["a"]))
	}
	if len(snap["b"]) != 0 {
		t.Fatalf("expected 0 samples for key b, got %d", len(snap["b"]))
	}
}

func TestResetRestartsCounters(t *testing.T) {
	s := New(3, nil)

	for i := 0; i < 3; i++ {
		_ = s.Sample("k", func() error { return nil })
	}
	if len(s.Snapshot()["k"]) != 1 {
		t.Fatal("expected 1 sample before reset")
	}

	s.Reset()

	if len(s.Snapshot()) != 0 {
		t.Fatal("expected samples cleared after reset")
	}

	// counter restarts from zero: two calls must not sample yet
	_ = s.Sample("k", func() error { return nil })
	_ = s.Sample("k", func() error { return nil })
	if len(s.Snapshot()["k"]) != 0 {
		t.Fatal("expected counter restarted from zero")
	}
	_ = s.Sample("k", func() error { return nil })
	if len(s.Snapshot()["k"]) != 1 {
		t.Fatal("expected sample on third call after reset")
	}
}

func TestSampleReturnsOperationError(t *testing.T) {
	s := New(1, nil)
	wantErr := errors.New("op failed")

	if err := s.Sample("k", func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected op error returned, got %v", err)
	}
	if len(s.Snapshot()["k"]) != 1 {
		t.Fatal("expected failed op still measured")
	}
}

func TestConcurrentSampling(t *testing.T) {
	s := New(10, nil)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = s.Sample("hot", func() error { return nil })
			}
		}()
	}
	wg.Wait()

	// 1000 invocations at rate 10 -> exactly 100 samples
	if got := len(s.Snapshot()["hot"]); got != 100 {
		t.Fatalf("expected 100 samples, got %d", got)
	}
}

func TestNoopVariant(t *testing.T) {
	s := New(0, nil)

	executed := false
	if err := s.Sample("k", func() error {
		executed = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !executed {
		t.Fatal("expected op executed by no-op variant")
	}
	if s.Snapshot() != nil {
		t.Fatal("expected no recorded samples from no-op variant")
	}
	s.Reset()
}
