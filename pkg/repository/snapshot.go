package repository

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/pkgng/pkg/archive"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fetch"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/glorpus-work/pkgng/pkg/manifest"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/signature"
)

// Archive base names published by a repository site.
const (
	RepoArchive        = "repo"
	DigestsArchive     = "digests"
	PackageSiteArchive = "packagesite"
)

// Entry names inside the archives.
const (
	RepoEntry        = "repo.sqlite"
	DigestsEntry     = "digests"
	PackageSiteEntry = "packagesite.yaml"
)

func archiveURL(site, base, ext string) string {
	return strings.TrimRight(site, "/") + "/" + base + "." + ext
}

// snapshot is a fetched archive held open in an unlinked temporary file.
type snapshot struct {
	name    string
	file    *os.File
	modTime time.Time
}

func fetchSnapshot(ctx context.Context, f fetch.Fetcher, tmpDir, site, base, ext string, since time.Time) (*snapshot, error) {
	tmp, err := fsutil.AnonymousTemp(tmpDir, "pkgng-"+base+"-*")
	if err != nil {
		return nil, errors.IO("fetch", base, err)
	}
	url := archiveURL(site, base, ext)
	res, err := f.Fetch(ctx, url, tmp, since)
	if err != nil {
		_ = tmp.Close()
		return nil, err
	}
	return &snapshot{name: base + "." + ext, file: tmp, modTime: res.ModTime}, nil
}

func (s *snapshot) Close() error {
	return s.file.Close()
}

func (s *snapshot) readEntry(ctx context.Context, entry string) ([]byte, error) {
	data, err := archive.ReadEntry(ctx, s.name, s.file, entry)
	if err != nil {
		return nil, classifyEntryError(s.name, entry, err)
	}
	return data, nil
}

func (s *snapshot) copyEntry(ctx context.Context, entry string, w io.Writer) error {
	if _, err := archive.CopyEntry(ctx, s.name, s.file, entry, w); err != nil {
		return classifyEntryError(s.name, entry, err)
	}
	return nil
}

func classifyEntryError(name, entry string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return errors.Integrity("read "+entry, name, fmt.Errorf("archive has no %s entry", entry))
	}
	return errors.Parse("read "+entry, name, err)
}

// verify checks data against the archive's detached signature. A nil
// verifier skips the check; a missing signature entry then is not an error.
func (s *snapshot) verify(ctx context.Context, v signature.Verifier, data io.Reader) error {
	if v == nil {
		return nil
	}
	sig, err := s.readEntry(ctx, signature.EntryName)
	if err != nil {
		if kind, ok := errors.KindOf(err); ok && kind == errors.KindIntegrity {
			return errors.Integrity("verify signature", s.name, fmt.Errorf("no signature found"))
		}
		return err
	}
	if err := v.Verify(data, sig); err != nil {
		if _, ok := errors.KindOf(err); ok {
			return errors.Wrapf(err, "verify %s", s.name)
		}
		return errors.Integrity("verify signature", s.name, err)
	}
	return nil
}

// readManifest decodes the manifest line starting at offset.
func readManifest(r io.ReaderAt, offset int64) (*model.Package, error) {
	br := bufio.NewReader(io.NewSectionReader(r, offset, math.MaxInt64-offset))
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, errors.IO("read manifest", strconv.FormatInt(offset, 10), err)
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, errors.Parse("read manifest", strconv.FormatInt(offset, 10), fmt.Errorf("no manifest at offset"))
	}
	return manifest.Decode(line)
}
