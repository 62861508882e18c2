// -- internal/reporting/snapshot.go --
package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/slotrunner/api/schemas"
)

// FileSnapshotWriter stores diagnostic page images under a directory.
type FileSnapshotWriter struct {
	dir string
}

var _ schemas.SnapshotWriter = (*FileSnapshotWriter)(nil)

// NewFileSnapshotWriter expands dir but creates it lazily on the first write.
func NewFileSnapshotWriter(dir string) (*FileSnapshotWriter, error) {
	if dir == "" {
		dir = "."
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand snapshot dir %s: %w", dir, err)
	}
	return &FileSnapshotWriter{dir: expanded}, nil
}

// SnapshotFileName is the deterministic file name for a profile's snapshot.
func SnapshotFileName(key string) string {
	return "error_" + schemas.SanitizeName(key) + ".png"
}

// WriteSnapshot writes png as error_<sanitized key>.png, replacing any earlier one.
func (w *FileSnapshotWriter) WriteSnapshot(key string, png []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, SnapshotFileName(key))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return path, nil
}
