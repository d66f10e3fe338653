package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// registering twice is harmless
	require.NoError(t, Register(reg))

	before := testutil.ToFloat64(Recreations)
	Recreations.Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Recreations))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["stepscan_recreations_total"])
}
