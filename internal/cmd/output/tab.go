package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/ipc"
)

func Schema(out io.Writer, sc *arrow.Schema) error {
	w := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "column\ttype\tnullable\t")
	for _, f := range sc.Fields() {
		fmt.Fprintf(w, "%s\t%s\t%v\t\n", f.Name, f.Type, f.Nullable)
	}
	return w.Flush()
}

// Stream prints the rows of an Arrow IPC stream as a table and returns the
// number of rows printed.
func Stream(out io.Writer, data []byte) (int64, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	defer r.Release()

	w := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	var s strings.Builder
	for i, f := range r.Schema().Fields() {
		if i != 0 {
			s.WriteByte('\t')
		}
		s.WriteString(f.Name)
	}
	s.WriteByte('\t')
	fmt.Fprintln(w, s.String())

	var rows int64
	for r.Next() {
		rec := r.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			s.Reset()
			for c := 0; c < int(rec.NumCols()); c++ {
				if c != 0 {
					s.WriteByte('\t')
				}
				s.WriteString(rec.Column(c).ValueStr(i))
			}
			s.WriteByte('\t')
			fmt.Fprintln(w, s.String())
		}
		rows += rec.NumRows()
	}
	if err := r.Err(); err != nil {
		return rows, err
	}
	return rows, w.Flush()
}
