// Command libstepscan builds the engine as a C shared library.
//
//	go build -buildmode=c-shared -o libstepscan.so ./cmd/libstepscan
//
// Functions returning char* return NULL on success and a JSON object
// {"error":"..."} otherwise, the string must be freed with
// stepscan_free_string. Result buffers live on the C heap and stay valid
// until stepscan_release_buffer.
package main

// #include "stepscan.h"
import "C"

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/apache/arrow/go/v15/arrow/memory/mallocator"
	"github.com/vinceanalytics/stepscan"
	"github.com/vinceanalytics/stepscan/internal/config"
	"github.com/vinceanalytics/stepscan/internal/handoff"
)

var (
	errNullArgument = errors.New("null argument")
	errNullHandle   = errors.New("null reader handle")
)

var engine = sync.OnceValues(func() (*stepscan.Engine, error) {
	o, err := config.Env(context.Background())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(config.Logger(os.Stderr, o.LogLevel, o.LogFormat))
	return stepscan.New(o, stepscan.WithAllocator(mallocator.NewMallocator()))
})

func cerr(err error) *C.char {
	return C.CString(string(stepscan.ErrorJSON(err)))
}

//export stepscan_open
func stepscan_open(source *C.char, columns **C.char, n C.size_t, out *C.uint64_t) *C.char {
	if source == nil || out == nil {
		return cerr(errNullArgument)
	}
	e, err := engine()
	if err != nil {
		return cerr(err)
	}
	var cols []string
	if columns != nil && n > 0 {
		for _, c := range unsafe.Slice(columns, int(n)) {
			if c == nil {
				return cerr(errNullArgument)
			}
			cols = append(cols, C.GoString(c))
		}
	}
	h, err := e.Open(context.Background(), C.GoString(source), cols)
	if err != nil {
		return cerr(err)
	}
	*out = C.uint64_t(h)
	return nil
}

//export stepscan_scan
func stepscan_scan(h C.uint64_t, min, max C.double, out *C.stepscan_result) *C.char {
	if out == nil {
		return cerr(errNullArgument)
	}
	*out = C.stepscan_result{}
	if h == 0 {
		return cerr(errNullHandle)
	}
	e, err := engine()
	if err != nil {
		return cerr(err)
	}
	res, err := e.Scan(context.Background(), handoff.Handle(h), float64(min), float64(max))
	if err != nil {
		return cerr(err)
	}
	out.buffer = C.uint64_t(res.Buffer)
	out.data = C.uintptr_t(res.Data)
	out.len = C.uint64_t(res.Len)
	out.rows = C.uint64_t(res.Rows)
	return nil
}

//export stepscan_release_buffer
func stepscan_release_buffer(buf C.uint64_t) {
	e, err := engine()
	if err != nil {
		return
	}
	if err := e.ReleaseBuffer(handoff.Handle(buf)); err != nil {
		slog.Warn("release buffer", "buffer", uint64(buf), "err", err)
	}
}

//export stepscan_release_handle
func stepscan_release_handle(h C.uint64_t) {
	e, err := engine()
	if err != nil {
		return
	}
	if err := e.ReleaseHandle(handoff.Handle(h)); err != nil {
		slog.Warn("release handle", "handle", uint64(h), "err", err)
	}
}

//export stepscan_free_string
func stepscan_free_string(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {}
