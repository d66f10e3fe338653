// Package steptest builds parquet fixtures shaped like logged run history and
// decodes IPC streams produced by scans.
package steptest

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
	"github.com/stretchr/testify/require"
)

const (
	Step  = "_step"
	Value = "value"
	Name  = "name"
)

type config struct {
	stepType   arrow.DataType
	steps      []int64
	nullSteps  map[int]bool
	nullValues map[int]bool
	noStep     bool
	rowGroup   int64
}

type Option func(*config)

// Float stores steps as float64 instead of int64.
func Float() Option {
	return StepType(arrow.PrimitiveTypes.Float64)
}

// StepType stores steps with the given type. Int64, Int32, Float64 and
// String are supported.
func StepType(dt arrow.DataType) Option {
	return func(c *config) { c.stepType = dt }
}

// Steps overrides the default 0..n-1 step values.
func Steps(v ...int64) Option {
	return func(c *config) { c.steps = v }
}

func NullSteps(rows ...int) Option {
	return func(c *config) {
		for _, r := range rows {
			c.nullSteps[r] = true
		}
	}
}

func NullValues(rows ...int) Option {
	return func(c *config) {
		for _, r := range rows {
			c.nullValues[r] = true
		}
	}
}

func WithoutStep() Option {
	return func(c *config) { c.noStep = true }
}

// RowGroupSize limits the number of rows per parquet row group.
func RowGroupSize(n int64) Option {
	return func(c *config) { c.rowGroup = n }
}

func newConfig(opts []Option) *config {
	c := &config{
		stepType:   arrow.PrimitiveTypes.Int64,
		nullSteps:  map[int]bool{},
		nullValues: map[int]bool{},
		rowGroup:   parquet.DefaultMaxRowGroupLen,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Record returns n rows with columns _step, value (row*10) and name
// ("even" or "odd" by row).
func Record(mem memory.Allocator, n int, opts ...Option) arrow.Record {
	c := newConfig(opts)
	if c.steps != nil {
		n = len(c.steps)
	}
	var fields []arrow.Field
	if !c.noStep {
		fields = append(fields, arrow.Field{Name: Step, Type: c.stepType, Nullable: true})
	}
	fields = append(fields,
		arrow.Field{Name: Value, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		arrow.Field{Name: Name, Type: arrow.BinaryTypes.String, Nullable: true},
	)
	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()

	col := 0
	if !c.noStep {
		appendSteps(b.Field(0), c, n)
		col++
	}
	values := b.Field(col).(*array.Int64Builder)
	names := b.Field(col + 1).(*array.StringBuilder)
	for i := 0; i < n; i++ {
		if c.nullValues[i] {
			values.AppendNull()
		} else {
			values.Append(int64(i * 10))
		}
		if i%2 == 0 {
			names.Append("even")
		} else {
			names.Append("odd")
		}
	}
	return b.NewRecord()
}

func appendSteps(fb array.Builder, c *config, n int) {
	step := func(i int) int64 {
		if c.steps != nil {
			return c.steps[i]
		}
		return int64(i)
	}
	for i := 0; i < n; i++ {
		if c.nullSteps[i] {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.Int64Builder:
			b.Append(step(i))
		case *array.Int32Builder:
			b.Append(int32(step(i)))
		case *array.Float64Builder:
			b.Append(float64(step(i)))
		case *array.StringBuilder:
			b.Append(strconv.FormatInt(step(i), 10))
		default:
			panic("unsupported step builder " + fb.Type().String())
		}
	}
}

// Bytes returns a parquet file holding Record(n, opts...).
func Bytes(t testing.TB, n int, opts ...Option) []byte {
	t.Helper()
	c := newConfig(opts)
	r := Record(memory.NewGoAllocator(), n, opts...)
	defer r.Release()

	var b bytes.Buffer
	w, err := pqarrow.NewFileWriter(r.Schema(), &b,
		parquet.NewWriterProperties(
			parquet.WithMaxRowGroupLength(c.rowGroup),
		),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	require.NoError(t, err)
	require.NoError(t, w.Write(r))
	require.NoError(t, w.Close())
	return b.Bytes()
}

// Write saves a fixture to path.
func Write(t testing.TB, path string, n int, opts ...Option) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, Bytes(t, n, opts...), 0600))
}

// Temp writes a fixture to a fresh temporary directory and returns its path.
func Temp(t testing.TB, n int, opts ...Option) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.parquet")
	Write(t, path, n, opts...)
	return path
}

// Row is one decoded row. Missing columns and null values are nil.
type Row struct {
	Step  *float64
	Value *int64
	Name  *string
}

// Decode reads an IPC stream and returns its schema and rows.
func Decode(t testing.TB, data []byte) (*arrow.Schema, []Row) {
	t.Helper()
	r, err := ipc.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Release()

	var rows []Row
	for r.Next() {
		rec := r.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			var row Row
			for c := 0; c < int(rec.NumCols()); c++ {
				a := rec.Column(c)
				if a.IsNull(i) {
					continue
				}
				switch rec.ColumnName(c) {
				case Step:
					v := stepValue(t, a, i)
					row.Step = &v
				case Value:
					v := a.(*array.Int64).Value(i)
					row.Value = &v
				case Name:
					v := a.(*array.String).Value(i)
					row.Name = &v
				}
			}
			rows = append(rows, row)
		}
	}
	require.NoError(t, r.Err())
	return r.Schema(), rows
}

func stepValue(t testing.TB, a arrow.Array, i int) float64 {
	switch e := a.(type) {
	case *array.Int64:
		return float64(e.Value(i))
	case *array.Int32:
		return float64(e.Value(i))
	case *array.Float64:
		return e.Value(i)
	default:
		t.Fatalf("unexpected step type %s", a.DataType())
		return 0
	}
}

// StepsOf returns the step of each row, null steps are skipped.
func StepsOf(rows []Row) []float64 {
	o := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.Step != nil {
			o = append(o, *r.Step)
		}
	}
	return o
}

// Range returns the float steps [lo, hi).
func Range(lo, hi int) []float64 {
	o := make([]float64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		o = append(o, float64(i))
	}
	return o
}
