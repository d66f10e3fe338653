package errs

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrOpen.New("missing.parquet"), "open"},
		{ErrOpen.Wrap(errors.New("boom"), "missing.parquet"), "open"},
		{ErrSchema.New("no _step"), "schema"},
		{ErrRead.Wrap(errors.New("corrupt"), "batch"), "read"},
		{ErrEncode.Wrap(errors.New("short write")), "encode"},
		{ErrOrder.New(1.0, 2.0), "order"},
		{errors.New("other"), "internal"},
	}
	for i, c := range cases {
		require.Equal(t, c.want, Kind(c.err), "case", i)
	}
}

func TestJSON(t *testing.T) {
	err := ErrSchema.New(`step column "_step" not found`)
	var m map[string]string
	require.NoError(t, json.Unmarshal(JSON(err), &m))
	require.Equal(t, map[string]string{
		"error": `schema: step column "_step" not found`,
	}, m)
	require.JSONEq(t, `{"error":""}`, string(JSON(nil)))
}
