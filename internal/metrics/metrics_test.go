package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// swap installs fb for the duration of the test. Tests using it must not run
// in parallel with each other.
func swap(t *testing.T, fb Backend) {
	t.Helper()
	orig := current()
	mu.Lock()
	backend = fb
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		backend = orig
		mu.Unlock()
	})
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := &fakeBackend{}
	swap(t, fb)

	RecordStep("nodes", "load", nil, 2*time.Second)
	RecordStep("languages", "commit", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.callsCounters))
	}
	if len(fb.callsHistograms) != 2 {
		t.Fatalf("expected 2 histogram calls, got %d", len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != StepTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, StepTotal)
	}
	if cc0.labels["job"] != "nodes" || cc0.labels["step"] != "load" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels = %v; want job=nodes step=load status=success", cc0.labels)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != StepDuration {
		t.Fatalf("hist[0].name=%q; want %s", h0.name, StepDuration)
	}
	if h0.value < 2.0-0.001 || h0.value > 2.0+0.001 {
		t.Fatalf("hist[0].value=%v; want ~2.0", h0.value)
	}

	cc1 := fb.callsCounters[1]
	if cc1.labels["status"] != "failure" {
		t.Fatalf("counter[1].labels[status]=%q; want %q", cc1.labels["status"], "failure")
	}
	h1 := fb.callsHistograms[1]
	if h1.value < 1.5-0.001 || h1.value > 1.5+0.001 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordRowAndBatches(t *testing.T) {
	fb := &fakeBackend{}
	swap(t, fb)

	RecordRow("nodes", "read", 3)
	RecordRow("nodes", "read", 0) // ignored
	RecordRow("nodes", "loaded", 5)
	RecordBatches("nodes", 2)
	RecordBatches("nodes", -1) // ignored

	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d", len(fb.callsCounters))
	}

	tests := []struct {
		name  string
		delta float64
		kind  string
	}{
		{RowsTotal, 3, "read"},
		{RowsTotal, 5, "loaded"},
		{BatchesTotal, 2, ""},
	}
	for i, tt := range tests {
		got := fb.callsCounters[i]
		if got.name != tt.name || got.delta != tt.delta {
			t.Fatalf("counter[%d] = %#v; want name=%s delta=%v", i, got, tt.name, tt.delta)
		}
		if got.labels["job"] != "nodes" || got.labels["kind"] != tt.kind {
			t.Fatalf("counter[%d].labels = %v; want job=nodes kind=%q", i, got.labels, tt.kind)
		}
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := &fakeBackend{}
	swap(t, nopBackend{})
	SetBackend(fb)

	if current() != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if current() != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
