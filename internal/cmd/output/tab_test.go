package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/stepscan/internal/steptest"
	"github.com/vinceanalytics/stepscan/internal/stream"
)

func TestSchema(t *testing.T) {
	r := steptest.Record(memory.NewGoAllocator(), 1)
	defer r.Release()

	var b bytes.Buffer
	require.NoError(t, Schema(&b, r.Schema()))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[1], "_step"))
	require.Contains(t, lines[1], "int64")
}

func TestStream(t *testing.T) {
	mem := memory.NewGoAllocator()
	r := steptest.Record(mem, 3, steptest.NullValues(1))
	defer r.Release()
	buf, _, err := stream.Encode(mem, []arrow.Record{r})
	require.NoError(t, err)
	defer buf.Release()

	var b bytes.Buffer
	rows, err := Stream(&b, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, int64(3), rows)

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, []string{"_step", "value", "name"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"1", "(null)", "odd"}, strings.Fields(lines[2]))
}
