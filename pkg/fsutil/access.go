package fsutil

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Writable reports whether the effective user may write path. For a path that
// does not exist yet, the closest existing parent directory is checked instead.
func Writable(path string) bool {
	for p := path; ; p = filepath.Dir(p) {
		if _, err := os.Lstat(p); err == nil {
			return unix.Faccessat(unix.AT_FDCWD, p, unix.W_OK, unix.AT_EACCESS) == nil
		}
		if parent := filepath.Dir(p); parent == p {
			return false
		}
	}
}
