package elfscan

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// Mode selects what Analyse does with the libraries it finds.
type Mode int

const (
	// AddMissingDeps records the installed packages providing needed
	// libraries as dependencies.
	AddMissingDeps Mode = iota + 1
	// RegisterShlibs records needed and provided library names.
	RegisterShlibs
)

// Catalog is the part of the installed-package catalog the analyser queries.
type Catalog interface {
	WhichProvidesShlib(ctx context.Context, soname string) ([]*model.Package, error)
	FilesByBaseName(ctx context.Context, name string) ([]catalog.OwnedFile, error)
}

// Analyser repairs dependency and shared library metadata of packages from
// the binaries they install.
type Analyser struct {
	catalog Catalog
	rootDir string
}

// NewAnalyser returns an analyser resolving installed files below rootDir.
func NewAnalyser(c Catalog, rootDir string) *Analyser {
	return &Analyser{catalog: c, rootDir: rootDir}
}

// Analyse runs mode over every file recorded in p and reports whether p changed.
// Files that cannot be opened or are not ELF are skipped.
func (a *Analyser) Analyse(ctx context.Context, p *model.Package, mode Mode) (bool, error) {
	changed := false
	for _, f := range p.Files {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		var (
			c   bool
			err error
		)
		switch mode {
		case AddMissingDeps:
			c, err = a.AddMissingDeps(ctx, p, f.Path)
		case RegisterShlibs:
			c = a.RegisterShlibs(p, f.Path)
		default:
			return false, fmt.Errorf("unknown analyse mode %d", mode)
		}
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (a *Analyser) resolve(file string) string {
	return filepath.Join(a.rootDir, filepath.FromSlash(strings.TrimPrefix(file, "/")))
}

// AddMissingDeps adds a dependency on the installed package providing each
// library the binary at file needs, unless p already depends on it or
// provides it itself. Libraries no installed package provides are ignored.
func (a *Analyser) AddMissingDeps(ctx context.Context, p *model.Package, file string) (bool, error) {
	needed, err := Scan(a.resolve(file))
	if err != nil {
		logger.DebugfWithFields(logger.Fields{"file": file, "error": err}, "skipping file")
		return false, nil
	}

	changed := false
	for _, name := range needed {
		owner, err := a.provider(ctx, name)
		if err != nil {
			return changed, err
		}
		if owner == nil {
			logger.DebugfWithFields(logger.Fields{"file": file, "library": name}, "library not provided by any package")
			continue
		}
		if owner.Origin == p.Origin || p.HasDep(owner.Origin) {
			continue
		}
		logger.Notice(fmt.Sprintf("adding forgotten depends (%s): %s", file, owner.NameVersion()),
			logger.Fields{"origin": p.Origin, "library": name})
		p.AddDep(owner.AsDependency())
		changed = true
	}
	return changed, nil
}

// provider returns the installed package providing a library whose soname is name.
func (a *Analyser) provider(ctx context.Context, name string) (*model.Package, error) {
	providers, err := a.catalog.WhichProvidesShlib(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(providers) > 0 {
		return providers[0], nil
	}

	files, err := a.catalog.FilesByBaseName(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		soname, err := Soname(a.resolve(f.Path))
		if err != nil {
			continue
		}
		if soname == name {
			return f.Owner, nil
		}
	}
	return nil, nil
}

// RegisterShlibs records the libraries the binary at file needs and the
// soname it provides. Repeated calls leave p unchanged.
func (a *Analyser) RegisterShlibs(p *model.Package, file string) bool {
	path := a.resolve(file)
	needed, err := Scan(path)
	if err != nil {
		logger.DebugfWithFields(logger.Fields{"file": file, "error": err}, "skipping file")
		return false
	}

	changed := false
	for _, name := range needed {
		if p.AddShlibRequired(name) {
			changed = true
		}
	}
	soname, err := Soname(path)
	if err == nil && soname != "" && p.AddShlibProvided(soname) {
		changed = true
	}
	return changed
}
