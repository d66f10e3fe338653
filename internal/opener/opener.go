package opener

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
	"github.com/apache/arrow/go/v15/parquet/schema"
	"github.com/vinceanalytics/stepscan/internal/errs"
	"github.com/vinceanalytics/stepscan/internal/source"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBatchSize is the number of rows per record handed out by readers.
const DefaultBatchSize = 64 << 10

var ErrNoMatchingColumns = errors.New("none of the requested columns were found in the schema")

var tracer = otel.Tracer("github.com/vinceanalytics/stepscan/internal/opener")

type Opener struct {
	sources   *source.Resolver
	mem       memory.Allocator
	batchSize int64
	log       *slog.Logger
}

func New(sources *source.Resolver, mem memory.Allocator, batchSize int64) *Opener {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Opener{
		sources:   sources,
		mem:       mem,
		batchSize: batchSize,
		log: slog.Default().With(
			slog.String("component", "opener"),
		),
	}
}

func (o *Opener) Allocator() memory.Allocator {
	return o.mem
}

// Open returns a forward only record reader over the parquet file at locator.
// Only leaf columns whose top level name is listed in columns are read, an
// empty list reads everything. All failures are errs.ErrOpen.
func (o *Opener) Open(ctx context.Context, locator string, columns []string) (*Reader, error) {
	ctx, span := tracer.Start(ctx, "opener.Open", trace.WithAttributes(
		attribute.String("source", locator),
		attribute.StringSlice("columns", columns),
	))
	defer span.End()

	src, err := o.sources.Open(ctx, locator)
	if err != nil {
		return nil, fail(span, errs.ErrOpen.Wrap(err, locator))
	}
	r, err := o.open(ctx, src, columns)
	if err != nil {
		src.Close()
		return nil, fail(span, errs.ErrOpen.Wrap(err, locator))
	}
	o.log.Debug("opened",
		slog.String("source", locator),
		slog.Int64("rows", r.rows),
		slog.Int("row_groups", r.groups),
	)
	return r, nil
}

func (o *Opener) open(ctx context.Context, src source.Source, columns []string) (*Reader, error) {
	pf, err := file.NewParquetReader(src,
		file.WithReadProps(parquet.NewReaderProperties(o.mem)),
	)
	if err != nil {
		return nil, err
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{
		BatchSize: o.batchSize,
	}, o.mem)
	if err != nil {
		return nil, err
	}
	indices, err := Projection(pf.MetaData().Schema, columns)
	if err != nil {
		return nil, err
	}
	groups := make([]int, pf.NumRowGroups())
	for i := range groups {
		groups[i] = i
	}
	rr, err := fr.GetRecordReader(ctx, indices, groups)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:    src,
		rr:     rr,
		rows:   pf.NumRows(),
		groups: len(groups),
	}, nil
}

// Projection returns parquet leaf column indices whose top level name is in
// columns, preserving file order. Names that do not exist are ignored.
func Projection(sc *schema.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		all := make([]int, sc.NumColumns())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	want := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		want[c] = struct{}{}
	}
	var indices []int
	for i := 0; i < sc.NumColumns(); i++ {
		path := sc.Column(i).ColumnPath()
		if len(path) == 0 {
			continue
		}
		if _, ok := want[path[0]]; ok {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return nil, ErrNoMatchingColumns
	}
	return indices, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Reader yields records of the projected columns. It cannot rewind, reopen
// the locator to start over.
type Reader struct {
	src    source.Source
	rr     pqarrow.RecordReader
	rows   int64
	groups int
}

func (r *Reader) Schema() *arrow.Schema {
	return r.rr.Schema()
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.rows
}

// Next returns the next record or io.EOF once the file is drained. The record
// is owned by the reader and is only valid until the following call to Next,
// Retain it to keep it longer.
func (r *Reader) Next() (arrow.Record, error) {
	if r.rr == nil {
		return nil, io.EOF
	}
	if r.rr.Next() {
		return r.rr.Record(), nil
	}
	if err := r.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return nil, io.EOF
}

// Release frees the record reader and closes the underlying source. It is
// safe to call more than once.
func (r *Reader) Release() {
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}
	if r.src != nil {
		r.src.Close()
		r.src = nil
	}
}
