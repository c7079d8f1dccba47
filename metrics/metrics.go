package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dsearch"

var (
	Registry = prometheus.NewRegistry()

	Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "docstore",
		Name:      "operations",
	}, []string{"tree", "op", "result"})

	IndexCommits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "commits",
	}, []string{"tree", "result"})

	IndexCommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "commit_duration_seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"tree"})

	// HydrationGaps counts search hits whose tree row was missing.
	HydrationGaps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "docstore",
		Name:      "hydration_gaps",
	}, []string{"tree"})

	// UnsyncedKeys counts keys written to the tree whose index commit failed.
	UnsyncedKeys = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "docstore",
		Name:      "unsynced_keys",
	}, []string{"tree"})

	Reindexed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "docstore",
		Name:      "reindexed_documents",
	}, []string{"tree", "action"})
)

func init() {
	Registry.MustRegister(
		Operations,
		IndexCommits,
		IndexCommitDuration,
		HydrationGaps,
		UnsyncedKeys,
		Reindexed,
	)
}

// Result is the label value for an error.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
