package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ok", Result(nil))
	require.Equal(t, "error", Result(errors.New("boom")))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	Operations.WithLabelValues("metrics_test", "create", "ok").Inc()
	HydrationGaps.WithLabelValues("metrics_test").Add(2)

	require.Equal(t, 1.0, testutil.ToFloat64(Operations.WithLabelValues("metrics_test", "create", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(HydrationGaps.WithLabelValues("metrics_test")))

	families, err := Registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "dsearch_docstore_operations")
	require.Contains(t, names, "dsearch_docstore_hydration_gaps")
}
