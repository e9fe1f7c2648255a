package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gzhole/rostershield/internal/redact"
)

var (
	RedactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rostershield_redactions_total",
			Help: "Substitutions made by the redaction engine",
		},
		[]string{"direction", "kind"},
	)

	RosterCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rostershield_roster_cache_lookups_total",
			Help: "Roster cache lookups by result",
		},
		[]string{"result"},
	)

	FileRedactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rostershield_file_redactions_total",
			Help: "Files passed through the document adapter",
		},
		[]string{"direction", "format", "outcome"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rostershield_tool_calls_total",
			Help: "Brokered MCP messages by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	RosterSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rostershield_roster_syncs_total",
			Help: "Roster sync requests by outcome",
		},
		[]string{"outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rostershield_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

// ObserveStats adds the counts of one mask or unmask call.
func ObserveStats(direction string, st redact.Stats) {
	add := func(kind string, n int) {
		if n > 0 {
			RedactionsTotal.WithLabelValues(direction, kind).Add(float64(n))
		}
	}
	add("name", st.Names)
	add("student_id", st.StudentIDs)
	add("email", st.Emails)
	add("one_way", st.OneWay)
	add("unresolved", st.Unresolved)
}

// ObserveCache records a roster cache hit or miss.
func ObserveCache(hit bool) {
	if hit {
		RosterCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	RosterCacheLookups.WithLabelValues("miss").Inc()
}
