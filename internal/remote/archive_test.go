package remote

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestArchiveSave(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)

	err := a.Save("/profile/logs/logs_2024-03-01_10-00-00", []byte("console output\n"))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "logs_2024-03-01_10-00-00.console.log.gz"))
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, "console output\n", string(data))
}

func TestArchiveSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)

	require.NoError(t, a.Save("/profile/logs/logs_2024-03-01_10-00-00", []byte("first")))
	require.NoError(t, a.Save("/profile/logs/logs_2024-03-01_10-00-00", []byte("second")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestArchiveDisabled(t *testing.T) {
	a := NewArchive("")
	require.NoError(t, a.Save("/profile/logs/logs_2024-03-01_10-00-00", []byte("data")))
}
