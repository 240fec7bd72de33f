package repository

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/archive"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/glorpus-work/pkgng/pkg/manifest"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/pkgfile"
	"github.com/glorpus-work/pkgng/pkg/signature"
	"github.com/glorpus-work/pkgng/pkg/version"
)

// Builder publishes the catalog archives for a directory of package files.
type Builder struct {
	ext    string
	signer signature.Signer
}

// BuildResult summarises a build.
type BuildResult struct {
	Packages int
	// Skipped lists files that could not be read as packages.
	Skipped []string
}

// NewBuilder creates a builder writing archives with extension ext. A nil
// signer produces unsigned archives.
func NewBuilder(ext string, signer signature.Signer) *Builder {
	return &Builder{ext: ext, signer: signer}
}

// Build scans repoDir for package files and writes repo, digests and
// packagesite archives into it. When several files share an origin the
// highest version wins.
func (b *Builder) Build(ctx context.Context, repoDir string) (*BuildResult, error) {
	pkgs, skipped, err := b.collect(ctx, repoDir)
	if err != nil {
		return nil, err
	}

	work, err := os.MkdirTemp("", "pkgng-repo-*")
	if err != nil {
		return nil, errors.IO("build repository", repoDir, err)
	}
	defer os.RemoveAll(work)

	sitePath := filepath.Join(work, PackageSiteEntry)
	digestsPath := filepath.Join(work, DigestsEntry)
	if err := writeSiteFiles(pkgs, sitePath, digestsPath); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(work, RepoEntry)
	if err := writeCatalog(ctx, pkgs, dbPath); err != nil {
		return nil, err
	}

	for _, out := range []struct{ base, entry, path string }{
		{RepoArchive, RepoEntry, dbPath},
		{DigestsArchive, DigestsEntry, digestsPath},
		{PackageSiteArchive, PackageSiteEntry, sitePath},
	} {
		if err := b.pack(ctx, repoDir, work, out.base, out.entry, out.path); err != nil {
			return nil, err
		}
	}
	logger.Success("repository built", logger.Fields{"dir": repoDir, "packages": len(pkgs)})
	return &BuildResult{Packages: len(pkgs), Skipped: skipped}, nil
}

func (b *Builder) isCatalogArchive(rel string) bool {
	for _, base := range []string{RepoArchive, DigestsArchive, PackageSiteArchive} {
		if rel == base+"."+b.ext {
			return true
		}
	}
	return false
}

func (b *Builder) collect(ctx context.Context, repoDir string) ([]*model.Package, []string, error) {
	byOrigin := make(map[string]*model.Package)
	var skipped []string
	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), "."+b.ext) {
			return nil
		}
		rel, err := filepath.Rel(repoDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if b.isCatalogArchive(rel) {
			return nil
		}
		p, err := pkgfile.Open(ctx, path)
		if err != nil {
			logger.Warn("skipping unreadable package", logger.Fields{"file": rel, "error": err.Error()})
			skipped = append(skipped, rel)
			return nil
		}
		if p.Digest == "" {
			if p.Digest, err = manifest.Digest(p); err != nil {
				return err
			}
		}
		if info, err := d.Info(); err == nil {
			p.PkgSize = info.Size()
		}
		p.RepoPath = rel
		p.Files, p.Dirs = nil, nil
		if prev, ok := byOrigin[p.Origin]; ok && version.Compare(prev.Version, p.Version) >= 0 {
			logger.Debugf("%s shadowed by %s", p.NameVersion(), prev.NameVersion())
			return nil
		}
		byOrigin[p.Origin] = p
		return nil
	})
	if err != nil {
		return nil, nil, errors.IO("scan repository", repoDir, err)
	}

	pkgs := make([]*model.Package, 0, len(byOrigin))
	for _, p := range byOrigin {
		pkgs = append(pkgs, p)
	}
	slices.SortFunc(pkgs, func(a, b *model.Package) int { return strings.Compare(a.Origin, b.Origin) })
	return pkgs, skipped, nil
}

// writeSiteFiles writes one compact manifest per line and the digests index
// pointing at each line's offset.
func writeSiteFiles(pkgs []*model.Package, sitePath, digestsPath string) error {
	site, err := os.Create(sitePath)
	if err != nil {
		return errors.IO("write packagesite", sitePath, err)
	}
	defer site.Close()
	digests, err := os.Create(digestsPath)
	if err != nil {
		return errors.IO("write digests", digestsPath, err)
	}
	defer digests.Close()

	sw, dw := bufio.NewWriter(site), bufio.NewWriter(digests)
	var offset int64
	for _, p := range pkgs {
		line, err := manifest.EncodeCompact(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(dw, "%s:%s:%d\n", p.Origin, p.Digest, offset)
		sw.Write(line)
		sw.WriteByte('\n')
		offset += int64(len(line)) + 1
	}
	if err := sw.Flush(); err != nil {
		return errors.IO("write packagesite", sitePath, err)
	}
	if err := dw.Flush(); err != nil {
		return errors.IO("write digests", digestsPath, err)
	}
	if err := site.Close(); err != nil {
		return errors.IO("write packagesite", sitePath, err)
	}
	return nil
}

func writeCatalog(ctx context.Context, pkgs []*model.Package, dbPath string) error {
	c, err := catalog.Open(ctx, dbPath, catalog.ModeCreate)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Update(ctx, func(tx *catalog.Tx) error {
		for _, p := range pkgs {
			if err := tx.Insert(p); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return c.Close()
}

// pack archives one entry, with its signature when a signer is set, and
// moves the archive into repoDir.
func (b *Builder) pack(ctx context.Context, repoDir, work, base, entry, path string) error {
	files := map[string]string{path: entry}
	if b.signer != nil {
		f, err := os.Open(path)
		if err != nil {
			return errors.IO("sign "+entry, path, err)
		}
		sig, err := b.signer.Sign(f)
		_ = f.Close()
		if err != nil {
			return errors.Wrapf(err, "sign %s", entry)
		}
		sigPath := filepath.Join(work, base+"."+signature.EntryName)
		if err := os.WriteFile(sigPath, sig, fsutil.FileModeDefault); err != nil {
			return errors.IO("sign "+entry, sigPath, err)
		}
		files[sigPath] = signature.EntryName
	}

	tmp := filepath.Join(work, base+"."+b.ext)
	if err := archive.CreateFile(ctx, tmp, b.ext, files); err != nil {
		return errors.IO("write archive", tmp, err)
	}
	dest := filepath.Join(repoDir, base+"."+b.ext)
	if err := fsutil.Move(tmp, dest); err != nil {
		return errors.IO("write archive", dest, err)
	}
	return nil
}
