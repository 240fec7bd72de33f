//go:generate mockgen -destination=mocks/jobs.go . Installed,Opener

// Package jobs turns install, upgrade and removal requests into ordered job sets.
package jobs

import (
	"context"
	"iter"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fetch"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/pkgfile"
)

// Installed is the view of the local catalog the planners need.
type Installed interface {
	Has(ctx context.Context, origin string) (bool, error)
	Get(ctx context.Context, origin string) (*model.Package, error)
	Packages(ctx context.Context) iter.Seq2[*model.Package, error]
	ReverseDeps(ctx context.Context, origin string) ([]*model.Package, error)
}

// Opener reads the package at a path or URL. The returned package's
// Location is a local file holding it.
type Opener interface {
	Open(ctx context.Context, location string) (*model.Package, error)
}

// FileOpener opens local package files and fetches URLs into a cache directory.
type FileOpener struct {
	fetcher  fetch.Fetcher
	cacheDir string
}

// NewFileOpener creates an opener that caches fetched packages in cacheDir.
func NewFileOpener(fetcher fetch.Fetcher, cacheDir string) *FileOpener {
	return &FileOpener{fetcher: fetcher, cacheDir: cacheDir}
}

// Open implements Opener.
func (o *FileOpener) Open(ctx context.Context, location string) (*model.Package, error) {
	if !fetch.IsURL(location) {
		if _, err := os.Stat(location); err != nil {
			return nil, errors.NotFound("open package", location, err)
		}
		return pkgfile.Open(ctx, location)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Parse("parse package url", location, err)
	}
	dest := filepath.Join(o.cacheDir, path.Base(u.Path))
	if _, err := fetch.ToFile(ctx, o.fetcher, location, dest, ""); err != nil {
		return nil, err
	}
	return pkgfile.Open(ctx, dest)
}

// siblingLocation returns where the package name-version is expected next to
// the package at parent, using the parent's file extension.
func siblingLocation(parent, nameVersion string) string {
	if fetch.IsURL(parent) {
		if u, err := url.Parse(parent); err == nil {
			u.Path = path.Join(path.Dir(u.Path), nameVersion+path.Ext(u.Path))
			return u.String()
		}
	}
	return filepath.Join(filepath.Dir(parent), nameVersion+filepath.Ext(parent))
}
