// Package scanner serves rows of a parquet file in step ranges. A Handle keeps
// a forward only reader positioned after the last row it returned so that
// successive ranges are read incrementally. Going backwards, or past the end,
// rebuilds the reader from its locator.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/compute"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/oklog/ulid/v2"
	"github.com/vinceanalytics/stepscan/internal/errs"
	"github.com/vinceanalytics/stepscan/internal/metrics"
	"github.com/vinceanalytics/stepscan/internal/opener"
	"github.com/vinceanalytics/stepscan/internal/stream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StepColumn is the column ranges are evaluated against.
const StepColumn = "_step"

var (
	ErrBusy   = errors.New("scanner: handle is in use by another call")
	ErrClosed = errors.New("scanner: handle is closed")
)

var tracer = otel.Tracer("github.com/vinceanalytics/stepscan/internal/scanner")

// Result is the outcome of a scan. Buffer is nil when no rows matched,
// otherwise it holds an Arrow IPC stream owned by the caller.
type Result struct {
	Buffer *memory.Buffer
	Rows   int64
}

type Options struct {
	// StrictOrder fails scans that observe a step smaller than the one before
	// it instead of serving possibly incomplete ranges.
	StrictOrder bool
}

// Handle is not safe for concurrent use. Overlapping Scan, Recreate and Close
// calls fail with ErrBusy.
type Handle struct {
	id      ulid.ULID
	opener  *opener.Opener
	mem     memory.Allocator
	locator string
	columns []string
	strict  bool
	log     *slog.Logger

	reader *opener.Reader
	batch  arrow.Record
	offset int

	last      float64
	served    bool
	exhausted bool

	prev    float64
	ordered bool

	recreated int
	busy      atomic.Bool
}

// Open opens locator and returns a handle positioned before the first row.
func Open(ctx context.Context, o *opener.Opener, locator string, columns []string, opts Options) (*Handle, error) {
	r, err := o.Open(ctx, locator, columns)
	if err != nil {
		return nil, err
	}
	id := ulid.Make()
	return &Handle{
		id:      id,
		opener:  o,
		mem:     o.Allocator(),
		locator: locator,
		columns: append([]string(nil), columns...),
		strict:  opts.StrictOrder,
		reader:  r,
		log: slog.Default().With(
			slog.String("component", "scanner"),
			slog.String("handle", id.String()),
			slog.String("source", locator),
		),
	}, nil
}

func (h *Handle) ID() ulid.ULID { return h.id }

func (h *Handle) Schema() *arrow.Schema { return h.reader.Schema() }

// Last returns the largest step returned since the reader was last created.
// ok is false when nothing has been returned yet.
func (h *Handle) Last() (last float64, ok bool) {
	return h.last, h.served
}

func (h *Handle) Exhausted() bool { return h.exhausted }

// Recreate reopens the locator with the original projection and resets the
// cursor. The current reader is kept if reopening fails.
func (h *Handle) Recreate(ctx context.Context) error {
	if !h.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer h.busy.Store(false)
	if h.reader == nil {
		return ErrClosed
	}
	return h.recreate(ctx)
}

func (h *Handle) recreate(ctx context.Context) error {
	r, err := h.opener.Open(ctx, h.locator, h.columns)
	if err != nil {
		return err
	}
	h.drop()
	h.reader.Release()
	h.reader = r
	h.served = false
	h.last = 0
	h.exhausted = false
	h.ordered = false
	h.prev = 0
	h.recreated++
	metrics.Recreations.Inc()
	return nil
}

func (h *Handle) drop() {
	if h.batch != nil {
		h.batch.Release()
		h.batch = nil
	}
	h.offset = 0
}

// Close releases the reader, any cached batch and the underlying source. It
// returns ErrBusy while a scan is in flight and does nothing once closed.
func (h *Handle) Close() error {
	if !h.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer h.busy.Store(false)
	h.drop()
	if h.reader != nil {
		h.reader.Release()
		h.reader = nil
	}
	return nil
}

type pass struct {
	min, max float64
	out      []arrow.Record
	rows     int64
	scanned  int64
	top      float64
	found    bool
}

func (p *pass) release() {
	for _, r := range p.out {
		r.Release()
	}
	p.out = nil
}

// Scan returns every row with min <= _step < max that lies after the rows
// already returned. Rows are served in storage order and the reader stops at
// the first step >= max, so _step must be non-decreasing for results to be
// complete. A query starting at or before the last returned step, or any query
// after the reader was drained, starts over from the beginning of the file.
//
// A failed scan may leave the cursor in the middle of a batch, Recreate the
// handle before relying on incremental results again.
func (h *Handle) Scan(ctx context.Context, min, max float64) (Result, error) {
	if !h.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer h.busy.Store(false)
	if h.reader == nil {
		return Result{}, ErrClosed
	}

	ctx, span := tracer.Start(ctx, "scanner.Scan", trace.WithAttributes(
		attribute.String("handle", h.id.String()),
		attribute.Float64("min", min),
		attribute.Float64("max", max),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	path := "fast"
	if (h.served && min <= h.last) || h.exhausted {
		path = "recreate"
		h.log.Debug("recreating reader",
			slog.Float64("min", min),
			slog.Float64("last", h.last),
			slog.Bool("exhausted", h.exhausted),
		)
		if err := h.recreate(ctx); err != nil {
			return Result{}, fail(span, err)
		}
	}
	metrics.Scans.WithLabelValues(path).Inc()

	p := &pass{min: min, max: max}
	if err := h.scan(ctx, p); err != nil {
		p.release()
		return Result{}, fail(span, err)
	}
	metrics.RowsScanned.Add(float64(p.scanned))
	h.log.Debug("scanned",
		slog.String("path", path),
		slog.Float64("min", min),
		slog.Float64("max", max),
		slog.Int64("scanned", p.scanned),
		slog.Int64("rows", p.rows),
		slog.Bool("exhausted", h.exhausted),
	)
	if p.rows == 0 {
		return Result{}, nil
	}
	buf, rows, err := stream.Encode(h.mem, p.out)
	p.release()
	if err != nil {
		return Result{}, fail(span, err)
	}
	h.last = p.top
	h.served = true
	metrics.RowsReturned.Add(float64(rows))
	metrics.EncodedBytes.Observe(float64(buf.Len()))
	span.SetAttributes(attribute.Int64("rows", rows))
	return Result{Buffer: buf, Rows: rows}, nil
}

func (h *Handle) scan(ctx context.Context, p *pass) error {
	for {
		if h.batch == nil {
			rec, err := h.reader.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					h.exhausted = true
					return nil
				}
				return errs.ErrRead.Wrap(err, h.locator)
			}
			rec.Retain()
			h.batch = rec
			h.offset = 0
		}
		stop, err := h.visit(ctx, p)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		h.drop()
	}
}

// visit collects matching rows of the cached batch starting at the cursor.
// It reports true when a step >= p.max was found, the cursor is then left on
// that row.
func (h *Handle) visit(ctx context.Context, p *pass) (bool, error) {
	rec := h.batch
	col, value, err := steps(rec)
	if err != nil {
		return false, err
	}
	n := int(rec.NumRows())
	keep := make([]bool, n)
	var (
		matched int
		stop    bool
		i       = h.offset
	)
	for ; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		v := value(i)
		if h.strict {
			if h.ordered && v < h.prev {
				return false, errs.ErrOrder.New(v, h.prev)
			}
			h.prev, h.ordered = v, true
		}
		if v >= p.max {
			stop = true
			break
		}
		if v >= p.min {
			keep[i] = true
			matched++
			if !p.found || v > p.top {
				p.top, p.found = v, true
			}
		}
	}
	p.scanned += int64(i - h.offset)
	h.offset = i
	if matched == 0 {
		return stop, nil
	}
	if matched == n {
		rec.Retain()
		p.out = append(p.out, rec)
		p.rows += int64(n)
		return stop, nil
	}
	b := array.NewBooleanBuilder(h.mem)
	b.AppendValues(keep, nil)
	mask := b.NewBooleanArray()
	b.Release()
	defer mask.Release()

	out, err := compute.FilterRecordBatch(compute.WithAllocator(ctx, h.mem), rec, mask, compute.DefaultFilterOptions())
	if err != nil {
		return false, errs.ErrRead.Wrap(err, h.locator)
	}
	p.out = append(p.out, out)
	p.rows += int64(matched)
	return stop, nil
}

// steps returns the step column of rec and an accessor converting its values
// to float64.
func steps(rec arrow.Record) (arrow.Array, func(int) float64, error) {
	idx := rec.Schema().FieldIndices(StepColumn)
	if len(idx) == 0 {
		return nil, nil, errs.ErrSchema.New("missing required column " + StepColumn)
	}
	col := rec.Column(idx[0])
	var value func(int) float64
	switch a := col.(type) {
	case *array.Float64:
		value = a.Value
	case *array.Float32:
		value = as[float32](a)
	case *array.Int64:
		value = as[int64](a)
	case *array.Int32:
		value = as[int32](a)
	case *array.Int16:
		value = as[int16](a)
	case *array.Int8:
		value = as[int8](a)
	case *array.Uint64:
		value = as[uint64](a)
	case *array.Uint32:
		value = as[uint32](a)
	case *array.Uint16:
		value = as[uint16](a)
	case *array.Uint8:
		value = as[uint8](a)
	default:
		return nil, nil, errs.ErrSchema.New(fmt.Sprintf("column %s has unsupported type %s", StepColumn, col.DataType()))
	}
	return col, value, nil
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32
}

func as[T number](a interface{ Value(int) T }) func(int) float64 {
	return func(i int) float64 { return float64(a.Value(i)) }
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
