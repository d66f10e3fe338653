//go:build cgo

package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/stepscan/internal/handoff"
	"github.com/vinceanalytics/stepscan/internal/steptest"
)

func errorOf(t *testing.T, msg string) string {
	t.Helper()
	require.NotEmpty(t, msg)
	var o struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg), &o))
	return o.Error
}

func ptr(s string) *string { return &s }

func TestScanNullArguments(t *testing.T) {
	t.Run("null result", func(t *testing.T) {
		_, msg := callScan(1, 0, 10, true)
		require.Equal(t, errNullArgument.Error(), errorOf(t, msg))
	})
	t.Run("zero handle", func(t *testing.T) {
		res, msg := callScan(0, 0, 10, false)
		require.Equal(t, errNullHandle.Error(), errorOf(t, msg))
		require.Equal(t, scanned{}, res)
	})
	t.Run("unknown handle", func(t *testing.T) {
		res, msg := callScan(1<<40, 0, 10, false)
		require.NotEmpty(t, errorOf(t, msg))
		require.Equal(t, scanned{}, res)
	})
}

func TestOpenNullArguments(t *testing.T) {
	t.Run("null source", func(t *testing.T) {
		h, msg := callOpen(nil, nil)
		require.Equal(t, errNullArgument.Error(), errorOf(t, msg))
		require.Zero(t, h)
	})
	t.Run("null column", func(t *testing.T) {
		path := steptest.Temp(t, 10)
		h, msg := callOpen(&path, []*string{ptr(steptest.Step), nil})
		require.Equal(t, errNullArgument.Error(), errorOf(t, msg))
		require.Zero(t, h)
	})
	t.Run("missing file", func(t *testing.T) {
		h, msg := callOpen(ptr("/does/not/exist.parquet"), nil)
		require.NotEmpty(t, errorOf(t, msg))
		require.Zero(t, h)
	})
}

func TestRoundTrip(t *testing.T) {
	path := steptest.Temp(t, 30)
	h, msg := callOpen(&path, []*string{ptr(steptest.Step), ptr(steptest.Value)})
	require.Empty(t, msg)
	require.NotZero(t, h)
	defer callReleaseHandle(h)

	res, msg := callScan(h, 0, 10, false)
	require.Empty(t, msg)
	require.NotZero(t, res.Buffer)
	require.NotZero(t, res.Data)
	require.Equal(t, uint64(10), res.Rows)
	require.Equal(t, res.Len, uint64(len(res.Bytes)))

	sc, rows := steptest.Decode(t, res.Bytes)
	require.Len(t, rows, 10)
	require.Equal(t, steptest.Range(0, 10), steptest.StepsOf(rows))
	require.True(t, sc.HasField(steptest.Value))
	require.False(t, sc.HasField(steptest.Name))

	empty, msg := callScan(h, 100, 200, false)
	require.Empty(t, msg)
	require.Equal(t, scanned{}, empty)

	callReleaseBuffer(res.Buffer)
	t.Run("double release", func(t *testing.T) {
		callReleaseBuffer(res.Buffer)
		e, err := engine()
		require.NoError(t, err)
		_, err = e.Bytes(handoff.Handle(res.Buffer))
		require.ErrorIs(t, err, handoff.ErrReleased)
	})
	t.Run("scan after release", func(t *testing.T) {
		callReleaseHandle(h)
		_, msg := callScan(h, 10, 20, false)
		require.NotEmpty(t, errorOf(t, msg))
	})
}
