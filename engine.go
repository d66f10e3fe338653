// Package stepscan serves rows of parquet histories in ranges of their _step
// column. Results are Arrow IPC streams whose ownership is handed to the
// caller until they are explicitly released, which makes the engine usable
// across a foreign function boundary.
package stepscan

import (
	"context"
	"errors"
	"log/slog"
	"unsafe"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/thanos-io/objstore"
	"github.com/vinceanalytics/stepscan/internal/config"
	"github.com/vinceanalytics/stepscan/internal/errs"
	"github.com/vinceanalytics/stepscan/internal/handoff"
	"github.com/vinceanalytics/stepscan/internal/metrics"
	"github.com/vinceanalytics/stepscan/internal/opener"
	"github.com/vinceanalytics/stepscan/internal/scanner"
	"github.com/vinceanalytics/stepscan/internal/source"
)

var errNothingServed = errors.New("no rows have been returned yet")

type Option func(*Engine)

// WithAllocator sets the allocator result buffers and decoded records are
// taken from. Defaults to memory.DefaultAllocator.
func WithAllocator(mem memory.Allocator) Option {
	return func(e *Engine) { e.mem = mem }
}

// WithBucket serves bucket:// sources from b instead of Options.BucketDir.
func WithBucket(b objstore.Bucket) Option {
	return func(e *Engine) { e.bucket = b }
}

// Result describes a scan result handed to the caller. Data points at Len
// bytes of an Arrow IPC stream and stays valid until Buffer is released. All
// fields are zero when no rows matched.
type Result struct {
	Buffer handoff.Handle
	Data   uintptr
	Len    int
	Rows   int64
}

// Engine is safe for concurrent use, individual handles are not.
type Engine struct {
	o       *config.Options
	mem     memory.Allocator
	bucket  objstore.Bucket
	sources *source.Resolver
	opener  *opener.Opener
	handles *handoff.Table[*scanner.Handle]
	buffers *handoff.Table[*memory.Buffer]
	log     *slog.Logger
}

func New(o *config.Options, opts ...Option) (*Engine, error) {
	if o == nil {
		o = config.Defaults()
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		o:   o,
		mem: memory.DefaultAllocator,
		log: slog.Default().With(
			slog.String("component", "engine"),
		),
	}
	for _, f := range opts {
		f(e)
	}
	if e.bucket == nil && o.BucketDir != "" {
		b, err := source.NewFSBucket(o.BucketDir)
		if err != nil {
			return nil, err
		}
		e.bucket = b
	}
	r, err := source.NewResolver(source.Options{
		BlockSize: o.BlockSize,
		CacheSize: o.CacheSize,
		Retries:   uint64(o.Retries),
		Timeout:   o.Timeout,
		Bucket:    e.bucket,
	})
	if err != nil {
		return nil, err
	}
	e.sources = r
	e.opener = opener.New(r, e.mem, o.BatchSize)
	e.handles = handoff.New((*scanner.Handle).Close, metrics.OpenHandles)
	e.buffers = handoff.New(func(b *memory.Buffer) error {
		b.Release()
		return nil
	}, metrics.OutstandingBuffers)
	return e, nil
}

// Open returns a handle for scanning the parquet file at locator. Only the
// listed columns are read, nil reads all of them.
func (e *Engine) Open(ctx context.Context, locator string, columns []string) (handoff.Handle, error) {
	h, err := scanner.Open(ctx, e.opener, locator, columns, scanner.Options{
		StrictOrder: e.o.StrictOrder,
	})
	if err != nil {
		return 0, err
	}
	id := e.handles.Put(h)
	e.log.Debug("opened handle",
		slog.Uint64("id", uint64(id)),
		slog.String("handle", h.ID().String()),
		slog.String("source", locator),
	)
	return id, nil
}

// Scan returns rows with min <= _step < max that follow rows already
// returned through id. See scanner.Handle.Scan for when the handle starts
// over from the beginning of the file.
func (e *Engine) Scan(ctx context.Context, id handoff.Handle, min, max float64) (Result, error) {
	h, err := e.handles.Get(id)
	if err != nil {
		return Result{}, err
	}
	res, err := h.Scan(ctx, min, max)
	if err != nil {
		return Result{}, err
	}
	if res.Buffer == nil {
		return Result{}, nil
	}
	data := res.Buffer.Bytes()
	return Result{
		Buffer: e.buffers.Put(res.Buffer),
		Data:   uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		Len:    len(data),
		Rows:   res.Rows,
	}, nil
}

// Schema returns the schema of records read through id.
func (e *Engine) Schema(id handoff.Handle) (*arrow.Schema, error) {
	h, err := e.handles.Get(id)
	if err != nil {
		return nil, err
	}
	return h.Schema(), nil
}

// Last returns the largest step returned through id since its reader was
// last created.
func (e *Engine) Last(id handoff.Handle) (float64, error) {
	h, err := e.handles.Get(id)
	if err != nil {
		return 0, err
	}
	last, ok := h.Last()
	if !ok {
		return 0, errNothingServed
	}
	return last, nil
}

// Bytes returns the contents of a result buffer. The slice must not be used
// after the buffer is released.
func (e *Engine) Bytes(buf handoff.Handle) ([]byte, error) {
	b, err := e.buffers.Get(buf)
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// ReleaseBuffer frees a result buffer. Releasing the zero handle does nothing,
// releasing twice returns handoff.ErrReleased.
func (e *Engine) ReleaseBuffer(buf handoff.Handle) error {
	return e.buffers.Release(buf)
}

// ReleaseHandle closes the reader behind id along with its file descriptors
// and connections. Buffers returned from it stay valid. A handle with a scan
// in flight is not released and scanner.ErrBusy is returned.
func (e *Engine) ReleaseHandle(id handoff.Handle) error {
	return e.handles.Release(id)
}

// Close releases every handle and buffer that is still live. Handles that are
// being scanned are left open.
func (e *Engine) Close() {
	if err := e.handles.Close(); err != nil {
		e.log.Warn("handles left open", slog.String("err", err.Error()))
	}
	e.buffers.Close()
	e.sources.Close()
}

// ErrorJSON encodes err as {"error":"<message>"}.
func ErrorJSON(err error) []byte {
	return errs.JSON(err)
}
