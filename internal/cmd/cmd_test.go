package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/stepscan/internal/steptest"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var b bytes.Buffer
	app := App()
	app.Writer = &b
	require.NoError(t, app.Run(context.Background(), append([]string{"stepscan"}, args...)))
	return b.String()
}

func TestScan(t *testing.T) {
	path := steptest.Temp(t, 20)

	out := run(t, "scan", "--source", path, "--min", "2", "--max", "5")
	_, rows := steptest.Decode(t, []byte(out))
	require.Equal(t, steptest.Range(2, 5), steptest.StepsOf(rows))

	t.Run("to file", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "out.arrow")
		require.Empty(t, run(t, "scan", "--source", path, "--columns", "_step,value", "--min", "15", "--out", dst))
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		sc, rows := steptest.Decode(t, data)
		require.Equal(t, 2, sc.NumFields())
		require.Equal(t, steptest.Range(15, 20), steptest.StepsOf(rows))
	})
	t.Run("nothing matched", func(t *testing.T) {
		require.Empty(t, run(t, "scan", "--source", path, "--min", "100"))
	})
	t.Run("bad source", func(t *testing.T) {
		app := App()
		app.Writer = &bytes.Buffer{}
		err := app.Run(context.Background(), []string{"stepscan", "scan", "--source", filepath.Join(t.TempDir(), "nope")})
		require.Error(t, err)
	})
}

func TestSchema(t *testing.T) {
	out := run(t, "schema", "--source", steptest.Temp(t, 3), "--columns", "name")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "name", strings.Fields(lines[1])[0])
}

func TestFollow(t *testing.T) {
	path := steptest.Temp(t, 6)
	out := run(t, "follow", "--source", path, "--from", "3", "--polls", "2", "--interval", "10ms")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// header plus steps 3, 4 and 5, the second poll finds nothing new
	require.Len(t, lines, 4)
	require.Equal(t, "3", strings.Fields(lines[1])[0])
	require.Equal(t, "5", strings.Fields(lines[3])[0])
}
