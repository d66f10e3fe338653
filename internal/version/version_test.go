package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	require.Equal(t, "v0.1.0", Version{}.String())
	v := Version{Valid: true, Date: "20240102", Commit: "0123456789abcdef", Dirty: true}
	require.Equal(t, "v0.1.0-20240102-012345678-dirty", v.String())
}
