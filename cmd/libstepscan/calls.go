package main

// #include "stepscan.h"
import "C"

import (
	"unsafe"
)

// scanned mirrors stepscan_result with Go types. Bytes is a copy of the
// region described by Data and Len.
type scanned struct {
	Buffer uint64
	Data   uintptr
	Len    uint64
	Rows   uint64
	Bytes  []byte
}

// goError converts a string returned by an export and frees it.
func goError(s *C.char) string {
	if s == nil {
		return ""
	}
	defer stepscan_free_string(s)
	return C.GoString(s)
}

// callOpen calls stepscan_open. A nil source is passed as NULL, so is a nil
// entry in columns.
func callOpen(source *string, columns []*string) (uint64, string) {
	var src *C.char
	if source != nil {
		src = C.CString(*source)
		defer C.free(unsafe.Pointer(src))
	}
	var cols **C.char
	if len(columns) > 0 {
		arr := unsafe.Slice((**C.char)(C.malloc(C.size_t(len(columns))*C.size_t(unsafe.Sizeof(src)))), len(columns))
		defer C.free(unsafe.Pointer(&arr[0]))
		for i, c := range columns {
			arr[i] = nil
			if c != nil {
				arr[i] = C.CString(*c)
				defer C.free(unsafe.Pointer(arr[i]))
			}
		}
		cols = &arr[0]
	}
	var h C.uint64_t
	msg := goError(stepscan_open(src, cols, C.size_t(len(columns)), &h))
	return uint64(h), msg
}

// callScan calls stepscan_scan. With nullOut set the result pointer is NULL.
func callScan(h uint64, min, max float64, nullOut bool) (scanned, string) {
	if nullOut {
		return scanned{}, goError(stepscan_scan(C.uint64_t(h), C.double(min), C.double(max), nil))
	}
	var out C.stepscan_result
	msg := goError(stepscan_scan(C.uint64_t(h), C.double(min), C.double(max), &out))
	res := scanned{
		Buffer: uint64(out.buffer),
		Data:   uintptr(out.data),
		Len:    uint64(out.len),
		Rows:   uint64(out.rows),
	}
	if res.Data != 0 && res.Len > 0 {
		res.Bytes = C.GoBytes(unsafe.Pointer(res.Data), C.int(res.Len))
	}
	return res, msg
}

func callReleaseBuffer(buf uint64) { stepscan_release_buffer(C.uint64_t(buf)) }

func callReleaseHandle(h uint64) { stepscan_release_handle(C.uint64_t(h)) }
