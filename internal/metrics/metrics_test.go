package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gzhole/rostershield/internal/redact"
)

func TestObserveStats(t *testing.T) {
	before := testutil.ToFloat64(RedactionsTotal.WithLabelValues("egress", "name"))
	ObserveStats("egress", redact.Stats{Names: 2, OneWay: 1})

	if got := testutil.ToFloat64(RedactionsTotal.WithLabelValues("egress", "name")); got != before+2 {
		t.Errorf("name counter = %v, want %v", got, before+2)
	}
}

func TestObserveCache(t *testing.T) {
	hits := testutil.ToFloat64(RosterCacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(RosterCacheLookups.WithLabelValues("miss"))

	ObserveCache(true)
	ObserveCache(false)
	ObserveCache(true)

	if got := testutil.ToFloat64(RosterCacheLookups.WithLabelValues("hit")); got != hits+2 {
		t.Errorf("hits = %v", got)
	}
	if got := testutil.ToFloat64(RosterCacheLookups.WithLabelValues("miss")); got != misses+1 {
		t.Errorf("misses = %v", got)
	}
}
