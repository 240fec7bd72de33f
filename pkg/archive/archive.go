// Package archive reads and writes the compressed tarballs used for
// repository snapshots and package files.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/mholt/archives"
)

// DefaultExt is the extension of repository archives and package files.
const DefaultExt = "txz"

// Source is an open archive: a named file on disk or an anonymous temporary file.
type Source interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// FormatForExt returns the archiver matching a file extension such as "txz".
func FormatForExt(ext string) (archives.Archiver, error) {
	tar := archives.Tar{}
	switch strings.TrimPrefix(ext, ".") {
	case "txz", "tar.xz":
		return archives.CompressedArchive{Compression: archives.Xz{}, Archival: tar}, nil
	case "tgz", "tar.gz":
		return archives.CompressedArchive{Compression: archives.Gz{}, Archival: tar}, nil
	case "tzst", "tar.zst":
		return archives.CompressedArchive{Compression: archives.Zstd{}, Archival: tar}, nil
	case "tbz", "tar.bz2":
		return archives.CompressedArchive{Compression: archives.Bz2{}, Archival: tar}, nil
	case "tar":
		return tar, nil
	default:
		return nil, fmt.Errorf("unsupported archive extension %q", ext)
	}
}

// Open returns the archive's file system. name is used for format detection
// together with the content of src; src may be nil to open name from disk.
func Open(ctx context.Context, name string, src Source) (fs.FS, error) {
	var stream archives.ReaderAtSeeker
	if src != nil {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind archive %s: %w", name, err)
		}
		stream = src
	}
	fsys, err := archives.FileSystem(ctx, name, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", name, err)
	}
	return fsys, nil
}

func closeFS(fsys fs.FS) {
	if closer, ok := fsys.(io.Closer); ok {
		_ = closer.Close()
	}
}

// ReadEntry returns the content of one entry. A missing entry yields an error
// matching fs.ErrNotExist.
func ReadEntry(ctx context.Context, name string, src Source, entry string) ([]byte, error) {
	fsys, err := Open(ctx, name, src)
	if err != nil {
		return nil, err
	}
	defer closeFS(fsys)

	data, err := fs.ReadFile(fsys, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", entry, name, err)
	}
	return data, nil
}

// CopyEntry streams one entry into w and returns the number of bytes copied.
func CopyEntry(ctx context.Context, name string, src Source, entry string, w io.Writer) (int64, error) {
	fsys, err := Open(ctx, name, src)
	if err != nil {
		return 0, err
	}
	defer closeFS(fsys)

	f, err := fsys.Open(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s in %s: %w", entry, name, err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s from %s: %w", entry, name, err)
	}
	return n, nil
}

// ExtractAll writes every entry accepted by keep below destDir and returns
// the archive paths written. A nil keep accepts everything. Entries that
// would escape destDir are rejected.
func ExtractAll(ctx context.Context, name string, src Source, destDir string, keep func(string) bool) ([]string, error) {
	fsys, err := Open(ctx, name, src)
	if err != nil {
		return nil, err
	}
	defer closeFS(fsys)

	if err := os.MkdirAll(destDir, fsutil.DirModeDefault); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	var written []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." || (keep != nil && !keep(p)) {
			return nil
		}
		target, err := safeJoin(destDir, p)
		if err != nil {
			return err
		}
		if err := extractEntry(fsys, p, target, d); err != nil {
			return err
		}
		if !d.IsDir() {
			written = append(written, p)
		}
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("failed to extract %s: %w", name, err)
	}
	return written, nil
}

func safeJoin(root, name string) (string, error) {
	clean := path.Clean("/" + name)
	target := filepath.Join(root, filepath.FromSlash(clean))
	if target != root && !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %s escapes %s", name, root)
	}
	return target, nil
}

func extractEntry(fsys fs.FS, p, target string, d fs.DirEntry) error {
	if d.IsDir() {
		return os.MkdirAll(target, fsutil.DirModeDefault)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info for %s: %w", p, err)
	}
	if err := fsutil.EnsureFileDir(target); err != nil {
		return err
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		return writeSymlink(fsys, p, target)
	}
	return writeRegularFile(fsys, p, target, info)
}

func writeSymlink(fsys fs.FS, p, target string) error {
	link, err := fsys.Open(p)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", p, err)
	}
	defer func() { _ = link.Close() }()

	dest, err := io.ReadAll(link)
	if err != nil {
		return fmt.Errorf("failed to read symlink target %s: %w", p, err)
	}
	_ = os.Remove(target)
	return os.Symlink(string(dest), target)
}

func writeRegularFile(fsys fs.FS, p, target string, info fs.FileInfo) error {
	src, err := fsys.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer func() { _ = src.Close() }()

	// replace rather than rewrite, running binaries may hold the old inode
	_ = os.Remove(target)
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to copy %s: %w", p, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	if err := os.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set modification time for %s: %w", target, err)
	}
	return nil
}

// Create writes an archive of files (disk path to name in archive) to w using
// the format selected by ext.
func Create(ctx context.Context, w io.Writer, ext string, files map[string]string) error {
	format, err := FormatForExt(ext)
	if err != nil {
		return err
	}
	entries, err := archives.FilesFromDisk(ctx, nil, files)
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}
	if err := format.Archive(ctx, w, entries); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

// CreateFile is Create writing to a new file at archivePath.
func CreateFile(ctx context.Context, archivePath, ext string, files map[string]string) error {
	if err := fsutil.EnsureFileDir(archivePath); err != nil {
		return err
	}
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}
	if err := Create(ctx, f, ext, files); err != nil {
		_ = f.Close()
		_ = os.Remove(archivePath)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", archivePath, err)
	}
	return f.Close()
}
