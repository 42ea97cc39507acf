package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(IdentificationsTotal.WithLabelValues("checked_in"))
	IdentificationsTotal.WithLabelValues("checked_in").Inc()
	if got := testutil.ToFloat64(IdentificationsTotal.WithLabelValues("checked_in")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}

	MembersEnrolled.Set(3)
	if got := testutil.ToFloat64(MembersEnrolled); got != 3 {
		t.Errorf("expected gauge 3, got %v", got)
	}
}

func TestCollectorsLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(AttendanceTransitionsTotal)
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
