package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSubmission(t *testing.T) {
	m := New()
	m.RecordSubmission("submitted")
	m.RecordSubmission("submitted")
	m.RecordSubmission("conflict")

	want := `
# HELP evalzoo_submissions_total Match submission attempts by outcome.
# TYPE evalzoo_submissions_total counter
evalzoo_submissions_total{outcome="conflict"} 1
evalzoo_submissions_total{outcome="submitted"} 2
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "evalzoo_submissions_total"); err != nil {
		t.Error(err)
	}
}

func TestGauges(t *testing.T) {
	m := New()
	m.RecordCluster(3, 12)
	m.RecordState(7, 41)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"cluster_jobs", testutil.ToFloat64(m.clusterJobs), 3},
		{"inflight_tasks", testutil.ToFloat64(m.inFlight), 12},
		{"queued_pairs", testutil.ToFloat64(m.queued), 7},
		{"last_version_queued", testutil.ToFloat64(m.lastQueued), 41},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordDeleted(2)
	m.RecordDeleted(0)
	m.RecordDropped()

	if got := testutil.ToFloat64(m.deleted); got != 2 {
		t.Errorf("jobs_deleted_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 1 {
		t.Errorf("pairs_dropped_total = %v, want 1", got)
	}
}
