package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsAreRegisteredAndRecordable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessagesForwarded.WithLabelValues("QUERY_FILE_LOCATION").Inc()
	m.MessagesDropped.WithLabelValues("rate_limited").Inc()
	m.DuplicatesDropped.WithLabelValues("INVALIDATE").Inc()
	m.QueryLogSize.Set(3)
	m.CacheTransitions.WithLabelValues("confirmed_valid").Inc()
	m.TestResponseLatency.Observe(0.05)
	m.TransferBytes.Add(1024)

	if got := testutil.ToFloat64(m.MessagesForwarded.WithLabelValues("QUERY_FILE_LOCATION")); got != 1 {
		t.Fatalf("MessagesForwarded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueryLogSize); got != 3 {
		t.Fatalf("QueryLogSize = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.TransferBytes); got != 1024 {
		t.Fatalf("TransferBytes = %v, want 1024", got)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count == 0 {
		t.Fatal("expected at least one registered metric family with samples")
	}
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("registering the same collectors twice against one registry should panic")
		}
	}()
	New(reg)
}
