package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Attempt(2 * time.Second)
	r.Attempt(time.Second)
	r.Finished("succeeded")
	r.Finished("failed")
	r.Finished("succeeded")
	r.QueueDepth(4)
	r.Acceptance(1, 0.43)

	if got := testutil.ToFloat64(r.attempts); got != 2 {
		t.Fatalf("attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("succeeded")); got != 2 {
		t.Fatalf("succeeded runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.queue); got != 4 {
		t.Fatalf("queue depth = %v, want 4", got)
	}
	want := `
# HELP idsm_sampler_acceptance_rate Metropolis acceptance rate of the last finished chain.
# TYPE idsm_sampler_acceptance_rate gauge
idsm_sampler_acceptance_rate{chain="1"} 0.43
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "idsm_sampler_acceptance_rate"); err != nil {
		t.Fatalf("acceptance: %v", err)
	}
	if n := testutil.CollectAndCount(r.duration); n != 1 {
		t.Fatalf("expected one histogram, got %d", n)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Attempt(time.Second)
	r.Finished("failed")
	r.QueueDepth(1)
	r.Acceptance(1, 0.5)
}
