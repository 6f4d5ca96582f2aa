package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRPCMetricsObserve(t *testing.T) {
	m := RPCMetrics()
	okBefore := testutil.ToFloat64(m.requests.WithLabelValues("lock_claim", "success"))
	errBefore := testutil.ToFloat64(m.errors.WithLabelValues("lock_claim", "-32001"))

	m.Observe("lock_claim", 0, 10*time.Millisecond)
	m.Observe("lock_claim", -32001, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("lock_claim", "success")); got != okBefore+1 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("lock_claim", "-32001")); got != errBefore+1 {
		t.Fatalf("error count = %v", got)
	}
	m.RecordThrottle("")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")); got < 1 {
		t.Fatalf("throttle not recorded")
	}
}
