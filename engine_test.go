package stepscan

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/stepscan/internal/config"
	"github.com/vinceanalytics/stepscan/internal/errs"
	"github.com/vinceanalytics/stepscan/internal/handoff"
	"github.com/vinceanalytics/stepscan/internal/steptest"
)

func newEngine(t *testing.T, o *config.Options) *Engine {
	t.Helper()
	e, err := New(o, WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func steps(t *testing.T, e *Engine, res Result) []float64 {
	t.Helper()
	if res.Buffer == 0 {
		return nil
	}
	b, err := e.Bytes(res.Buffer)
	require.NoError(t, err)
	_, rows := steptest.Decode(t, b)
	require.Len(t, rows, int(res.Rows))
	return steptest.StepsOf(rows)
}

func TestEngine(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	h, err := e.Open(ctx, steptest.Temp(t, 30), nil)
	require.NoError(t, err)
	require.NotZero(t, h)

	first, err := e.Scan(ctx, h, 0, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), first.Rows)
	b, err := e.Bytes(first.Buffer)
	require.NoError(t, err)
	require.Equal(t, len(b), first.Len)
	require.Equal(t, uintptr(unsafe.Pointer(&b[0])), first.Data)
	require.Equal(t, steptest.Range(0, 10), steptest.StepsOf(mustDecode(t, b)))
	last, err := e.Last(h)
	require.NoError(t, err)
	require.Equal(t, 9.0, last)

	second, err := e.Scan(ctx, h, 10, 20)
	require.NoError(t, err)
	require.Equal(t, steptest.Range(10, 20), steps(t, e, second))
	require.NotEqual(t, first.Buffer, second.Buffer)

	empty, err := e.Scan(ctx, h, 100, 200)
	require.NoError(t, err)
	require.Equal(t, Result{}, empty)

	require.NoError(t, e.ReleaseBuffer(first.Buffer))
	require.NoError(t, e.ReleaseHandle(h))

	t.Run("buffers outlive handles", func(t *testing.T) {
		require.Equal(t, steptest.Range(10, 20), steps(t, e, second))
		require.NoError(t, e.ReleaseBuffer(second.Buffer))
	})
	t.Run("double release", func(t *testing.T) {
		require.ErrorIs(t, e.ReleaseBuffer(first.Buffer), handoff.ErrReleased)
		require.ErrorIs(t, e.ReleaseHandle(h), handoff.ErrReleased)
	})
	t.Run("use after release", func(t *testing.T) {
		_, err := e.Bytes(first.Buffer)
		require.ErrorIs(t, err, handoff.ErrReleased)
		_, err = e.Scan(ctx, h, 0, 10)
		require.ErrorIs(t, err, handoff.ErrReleased)
	})
	t.Run("zero handles", func(t *testing.T) {
		require.NoError(t, e.ReleaseBuffer(0))
		require.NoError(t, e.ReleaseHandle(0))
		_, err := e.Scan(ctx, 0, 0, 10)
		require.ErrorIs(t, err, handoff.ErrUnknownHandle)
	})
	t.Run("last before any rows", func(t *testing.T) {
		h, err := e.Open(ctx, steptest.Temp(t, 3), nil)
		require.NoError(t, err)
		_, err = e.Last(h)
		require.Error(t, err)
	})
}

func mustDecode(t *testing.T, b []byte) []steptest.Row {
	_, rows := steptest.Decode(t, b)
	return rows
}

func TestEngineErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	t.Run("open", func(t *testing.T) {
		_, err := e.Open(ctx, filepath.Join(t.TempDir(), "missing.parquet"), nil)
		require.True(t, errs.ErrOpen.Is(err))
		require.Contains(t, string(ErrorJSON(err)), "missing.parquet")
	})
	t.Run("schema", func(t *testing.T) {
		good, err := e.Open(ctx, steptest.Temp(t, 10), nil)
		require.NoError(t, err)
		bad, err := e.Open(ctx, steptest.Temp(t, 10, steptest.WithoutStep()), nil)
		require.NoError(t, err)

		_, err = e.Scan(ctx, bad, 0, 10)
		require.True(t, errs.ErrSchema.Is(err))

		var msg struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(ErrorJSON(err), &msg))
		require.Equal(t, err.Error(), msg.Error)

		res, err := e.Scan(ctx, good, 0, 10)
		require.NoError(t, err)
		require.Equal(t, steptest.Range(0, 10), steps(t, e, res))
	})
}

func TestEngineStepTypes(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	scan := func(path string) []steptest.Row {
		h, err := e.Open(ctx, path, nil)
		require.NoError(t, err)
		defer e.ReleaseHandle(h)
		res, err := e.Scan(ctx, h, 3, 17)
		require.NoError(t, err)
		defer e.ReleaseBuffer(res.Buffer)
		b, err := e.Bytes(res.Buffer)
		require.NoError(t, err)
		return mustDecode(t, b)
	}
	ints := scan(steptest.Temp(t, 20))
	floats := scan(steptest.Temp(t, 20, steptest.Float()))
	require.Len(t, ints, 14)
	require.Equal(t, ints, floats)
}

func TestEngineBucket(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	steptest.Write(t, filepath.Join(dir, "history.parquet"), 25)

	o := config.Defaults()
	o.BucketDir = dir
	o.BlockSize = 512
	e := newEngine(t, o)

	h, err := e.Open(ctx, "bucket://history.parquet", []string{steptest.Step})
	require.NoError(t, err)
	res, err := e.Scan(ctx, h, 20, 100)
	require.NoError(t, err)
	require.Equal(t, steptest.Range(20, 25), steps(t, e, res))

	t.Run("not configured", func(t *testing.T) {
		e := newEngine(t, nil)
		_, err := e.Open(ctx, "bucket://history.parquet", nil)
		require.True(t, errs.ErrOpen.Is(err))
	})
}

func TestEngineStrictOrder(t *testing.T) {
	ctx := context.Background()
	o := config.Defaults()
	o.StrictOrder = true
	e := newEngine(t, o)

	h, err := e.Open(ctx, steptest.Temp(t, 0, steptest.Steps(0, 3, 2, 4)), nil)
	require.NoError(t, err)
	_, err = e.Scan(ctx, h, 0, 10)
	require.True(t, errs.ErrOrder.Is(err))
	require.Equal(t, "order", errs.Kind(err))
}

func TestEngineClose(t *testing.T) {
	ctx := context.Background()
	e, err := New(nil)
	require.NoError(t, err)

	h, err := e.Open(ctx, steptest.Temp(t, 10), nil)
	require.NoError(t, err)
	res, err := e.Scan(ctx, h, 0, 5)
	require.NoError(t, err)
	require.NotZero(t, res.Buffer)
	require.Equal(t, 1, e.buffers.Len())
	require.Equal(t, 1, e.handles.Len())

	e.Close()
	require.Zero(t, e.buffers.Len())
	require.Zero(t, e.handles.Len())
}

func TestNewInvalidOptions(t *testing.T) {
	o := config.Defaults()
	o.BatchSize = 0
	_, err := New(o)
	require.Error(t, err)
}
