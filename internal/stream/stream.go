// Package stream encodes records as a single Arrow IPC stream held in
// allocator owned memory.
package stream

import (
	"errors"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/vinceanalytics/stepscan/internal/errs"
)

var errNoRecords = errors.New("no records to encode")

// Encode writes the schema of the first record, every record and the end of
// stream marker into a buffer allocated from mem. All records must share the
// same schema. On failure nothing is returned and partial output is freed.
//
// The caller owns the returned buffer and must Release it.
func Encode(mem memory.Allocator, records []arrow.Record) (*memory.Buffer, int64, error) {
	if len(records) == 0 {
		return nil, 0, errs.ErrEncode.Wrap(errNoRecords)
	}
	buf := memory.NewResizableBuffer(mem)
	w := ipc.NewWriter(&Writer{Buffer: buf},
		ipc.WithSchema(records[0].Schema()),
		ipc.WithAllocator(mem),
	)
	var rows int64
	for _, r := range records {
		if err := w.Write(r); err != nil {
			w.Close()
			buf.Release()
			return nil, 0, errs.ErrEncode.Wrap(err)
		}
		rows += r.NumRows()
	}
	if err := w.Close(); err != nil {
		buf.Release()
		return nil, 0, errs.ErrEncode.Wrap(err)
	}
	return buf, rows, nil
}

// Writer appends to a resizable arrow buffer, growing it geometrically.
type Writer struct {
	Buffer *memory.Buffer
}

func (w *Writer) Write(p []byte) (int, error) {
	n := w.Buffer.Len()
	size := n + len(p)
	if size > w.Buffer.Cap() {
		w.Buffer.Reserve(max(size, 2*w.Buffer.Cap()))
	}
	w.Buffer.ResizeNoShrink(size)
	copy(w.Buffer.Bytes()[n:], p)
	return len(p), nil
}
