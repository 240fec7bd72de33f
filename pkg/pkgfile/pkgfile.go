// Package pkgfile opens and creates package files: an archive holding the
// +MANIFEST entry and the payload stored under the install paths.
package pkgfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/pkgng/pkg/archive"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/glorpus-work/pkgng/pkg/manifest"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// Open reads the manifest of the package file at path. The returned package's
// Location is path and its PkgSize the file size when the manifest has none.
func Open(ctx context.Context, path string) (*model.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("open package", path, err)
		}
		return nil, errors.IO("open package", path, err)
	}
	defer f.Close()

	data, err := archive.ReadEntry(ctx, path, f, manifest.FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Parse("open package", path, errors.New("no "+manifest.FileName+" entry"))
		}
		return nil, errors.Parse("open package", path, err)
	}
	p, err := manifest.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "package %s", path)
	}

	p.Location = path
	if p.PkgSize == 0 {
		if info, err := f.Stat(); err == nil {
			p.PkgSize = info.Size()
		}
	}
	return p, nil
}

// Extract writes the payload of the package file at path below rootDir and
// returns the archive paths written. Metadata entries starting with '+' are skipped.
func Extract(ctx context.Context, path, rootDir string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IO("open package", path, err)
	}
	defer f.Close()

	written, err := archive.ExtractAll(ctx, path, f, rootDir, isPayload)
	if err != nil {
		return written, errors.IO("extract package", path, err)
	}
	return written, nil
}

func isPayload(name string) bool {
	return !strings.HasPrefix(filepath.Base(name), "+")
}

// Create builds a package file at outPath from p's manifest and the files p
// lists, read from below stageDir. Missing file checksums are filled in and
// the manifest digest is computed.
func Create(ctx context.Context, outPath, ext string, p *model.Package, stageDir string) error {
	if err := p.Validate(); err != nil {
		return errors.Parse("create package", outPath, err)
	}

	files := make(map[string]string, len(p.Files)+1)
	for i, file := range p.Files {
		rel := strings.TrimPrefix(file.Path, "/")
		src := filepath.Join(stageDir, filepath.FromSlash(rel))
		if file.Checksum == "" {
			sum, err := checksum(src)
			if err != nil {
				return err
			}
			p.Files[i].Checksum = sum
		}
		files[src] = rel
	}

	digest, err := manifest.Digest(p)
	if err != nil {
		return err
	}
	p.Digest = digest

	data, err := manifest.Encode(p)
	if err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp("", "pkgng-create-*")
	if err != nil {
		return errors.IO("create package", outPath, err)
	}
	defer os.RemoveAll(tmpDir)
	manifestPath := filepath.Join(tmpDir, manifest.FileName)
	if err := os.WriteFile(manifestPath, data, fsutil.FileModeDefault); err != nil {
		return errors.IO("create package", outPath, err)
	}
	files[manifestPath] = manifest.FileName

	if err := archive.CreateFile(ctx, outPath, ext, files); err != nil {
		return errors.IO("create package", outPath, err)
	}
	return nil
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.IO("checksum", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.IO("checksum", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
