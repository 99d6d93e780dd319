package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	require.NoError(t, app.Run(append([]string{"carprep", "--log-level", "error"}, args...)))
	return buf.String()
}

func TestPublishReportsRowsWrittenByRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARPREP_STORAGE_DRIVER", "sqlite")
	t.Setenv("CARPREP_SQLITE_PATH", filepath.Join(dir, "cars.db"))

	first := filepath.Join(dir, "first.csv")
	require.NoError(t, os.WriteFile(first, []byte("merk,model,prijs\nAudi,A4,20000\nBMW,X5,50000\n"), 0o644))
	second := filepath.Join(dir, "second.csv")
	require.NoError(t, os.WriteFile(second, []byte("merk,model,prijs\nKia,Ceed,18000\n"), 0o644))

	out := runCLI(t, "publish", "--input", first)
	assert.Contains(t, out, "2 vehicles written by run")
	assert.Contains(t, out, "2 now stored")

	out = runCLI(t, "publish", "--input", second)
	assert.Contains(t, out, "1 vehicles written by run")
	assert.Contains(t, out, "3 now stored")
}
