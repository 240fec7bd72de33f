package fsutil

import (
	"fmt"
	"os"
)

// AnonymousTemp creates a securely named temporary file in dir and unlinks it
// right away, so the data only lives as long as the returned handle.
// An empty dir means os.TempDir().
func AnonymousTemp(dir, pattern string) (*os.File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	if err := os.Remove(f.Name()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to unlink temporary file %s: %w", f.Name(), err)
	}
	return f, nil
}

// Rewind seeks f back to its start.
func Rewind(f *os.File) error {
	_, err := f.Seek(0, 0)
	return err
}
