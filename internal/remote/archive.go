package remote

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Archive keeps gzip copies of fetched session logs for offline replay and
// debugging. A zero-value dir disables archiving.
type Archive struct {
	dir string
}

// NewArchive creates an archive rooted at dir; empty dir disables it
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Save writes a compressed copy of a session's console log, named after the
// session directory. Re-saving the same session overwrites the prior copy.
func (a *Archive) Save(sessionDir string, data []byte) error {
	if a.dir == "" {
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}

	name := path.Base(sessionDir) + ".console.log.gz"
	target := filepath.Join(a.dir, name)

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", target, err)
	}
	return f.Close()
}
