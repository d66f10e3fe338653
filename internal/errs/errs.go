package errs

import (
	"encoding/json"

	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrOpen is returned when a source cannot be opened, its footer or schema
	// cannot be parsed or the requested projection is empty.
	ErrOpen = errors.NewKind("open %s")

	// ErrSchema is returned at scan time when the step column is missing or
	// has an unsupported type.
	ErrSchema = errors.NewKind("schema: %s")

	// ErrRead is returned when reading a batch fails mid stream.
	ErrRead = errors.NewKind("read %s")

	// ErrEncode is returned when building the IPC stream fails.
	ErrEncode = errors.NewKind("encode ipc stream")

	// ErrOrder is returned in strict mode when step values decrease in
	// storage order.
	ErrOrder = errors.NewKind("schema: step %v follows %v, steps must be non-decreasing")
)

var kinds = []struct {
	name string
	kind *errors.Kind
}{
	{"open", ErrOpen},
	{"schema", ErrSchema},
	{"read", ErrRead},
	{"encode", ErrEncode},
	{"order", ErrOrder},
}

// Kind returns the short name of the error kind or "internal" for errors that
// were not raised through one of the kinds in this package.
func Kind(err error) string {
	for _, k := range kinds {
		if k.kind.Is(err) {
			return k.name
		}
	}
	return "internal"
}

type message struct {
	Error string `json:"error"`
}

// JSON encodes err as {"error":"<message>"}. A nil error encodes an empty
// message.
func JSON(err error) []byte {
	var m message
	if err != nil {
		m.Error = err.Error()
	}
	b, _ := json.Marshal(m)
	return b
}
