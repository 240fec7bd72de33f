// Package repository keeps local mirrors of remote repository catalogs in sync
// and builds the catalog files a repository site publishes.
package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fetch"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/signature"
	"github.com/glorpus-work/pkgng/pkg/version"
)

// Outcome is the result of a successful sync.
type Outcome int

// Sync outcomes.
const (
	UpToDate Outcome = iota
	Updated
)

func (o Outcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "up to date"
}

var errNoDigests = errors.New("digests not published")

// Engine syncs repository catalogs into the configured database directory.
type Engine struct {
	cfg      *config.Config
	fetcher  fetch.Fetcher
	abi      string
	verifier signature.Verifier
	tmpDir   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithVerifier makes every repository with signature checking enabled use v
// instead of loading its configured key.
func WithVerifier(v signature.Verifier) Option {
	return func(e *Engine) {
		e.verifier = v
	}
}

// WithTempDir sets where fetched archives are spooled.
func WithTempDir(dir string) Option {
	return func(e *Engine) {
		e.tmpDir = dir
	}
}

// NewEngine creates a sync engine. abi is the string every remote package's
// arch must equal.
func NewEngine(cfg *config.Config, fetcher fetch.Fetcher, abi string, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, fetcher: fetcher, abi: abi}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) verifierFor(repo *config.RepositoryConfig) (signature.Verifier, error) {
	if repo.Signature.Type != config.SignaturePubkey {
		return nil, nil
	}
	if e.verifier != nil {
		return e.verifier, nil
	}
	return signature.LoadVerifier(repo.Signature.Key)
}

// CheckFreshness returns the catalog's modification time as the watermark for
// conditional fetches. ok is false when the catalog is missing, was synced from
// another site, or has an incompatible schema; a full refetch is needed then.
func (e *Engine) CheckFreshness(ctx context.Context, catalogPath, siteURL string) (time.Time, bool) {
	info, err := os.Stat(catalogPath)
	if err != nil {
		return time.Time{}, false
	}
	c, err := catalog.Open(ctx, catalogPath, catalog.ModeReadOnly)
	if err != nil {
		logger.Debug("catalog not usable, forcing full fetch", logger.Fields{"path": catalogPath, "error": err.Error()})
		return time.Time{}, false
	}
	defer c.Close()

	site, err := c.Meta(ctx, catalog.MetaPackageSite)
	if err != nil || site != siteURL {
		return time.Time{}, false
	}
	schema, err := c.Meta(ctx, catalog.MetaSchemaVersion)
	if err != nil || !version.SchemaCompatible(schema) {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Sync brings the mirror catalog of repoName up to date with siteURL. force
// ignores the freshness watermark. On failure the existing catalog is untouched.
func (e *Engine) Sync(ctx context.Context, repoName, siteURL string, force bool) (Outcome, error) {
	repo := e.cfg.Repository(repoName)
	if repo == nil {
		repo = &config.RepositoryConfig{Name: repoName, URL: siteURL, Enabled: true}
	}
	catalogPath := e.cfg.CatalogPath(repoName)
	if !fsutil.Writable(catalogPath) {
		return UpToDate, errors.Permission("update repository catalog", catalogPath, fmt.Errorf("insufficient privilege"))
	}
	if err := fsutil.EnsureFileDir(catalogPath); err != nil {
		return UpToDate, errors.IO("update repository catalog", catalogPath, err)
	}
	verifier, err := e.verifierFor(repo)
	if err != nil {
		return UpToDate, err
	}

	watermark, current := e.CheckFreshness(ctx, catalogPath, siteURL)
	var since time.Time
	if current && !force {
		since = watermark
	}

	logger.InfofWithFields(logger.Fields{"repository": repoName, "url": siteURL}, "updating %s repository catalog", repoName)
	if repo.Incremental && current {
		outcome, err := e.syncIncremental(ctx, siteURL, catalogPath, since, verifier)
		if !errors.Is(err, errNoDigests) {
			return e.report(repoName, outcome, err)
		}
		logger.Debug("digests not published, fetching the full catalog", logger.Fields{"repository": repoName})
	}
	outcome, err := e.syncFull(ctx, siteURL, catalogPath, since, verifier)
	return e.report(repoName, outcome, err)
}

func (e *Engine) report(repoName string, outcome Outcome, err error) (Outcome, error) {
	switch {
	case err != nil:
		logger.Error("repository update failed", logger.Fields{"repository": repoName, "error": err.Error()})
	case outcome == UpToDate:
		logger.Infof("%s repository is up to date", repoName)
	default:
		logger.Success(repoName+" repository updated", logger.Fields{"repository": repoName})
	}
	return outcome, err
}

func (e *Engine) ext() string {
	if e.cfg.Settings.RepoExt != "" {
		return e.cfg.Settings.RepoExt
	}
	return config.DefaultRepoExt
}

// staging is a catalog copy that replaces the live catalog on commit.
type staging struct {
	path      string
	committed bool
}

func newStaging(catalogPath string) *staging {
	s := &staging{path: catalogPath + fsutil.UncheckedSuffix}
	_ = os.Remove(s.path)
	return s
}

func (s *staging) discard() {
	if !s.committed {
		_ = os.Remove(s.path)
	}
}

func (s *staging) commit(catalogPath string, modTime time.Time) error {
	if err := os.Rename(s.path, catalogPath); err != nil {
		return errors.IO("commit catalog", catalogPath, err)
	}
	s.committed = true
	if !modTime.IsZero() {
		if err := os.Chtimes(catalogPath, modTime, modTime); err != nil {
			return errors.IO("set catalog time", catalogPath, err)
		}
	}
	return nil
}

func stampMeta(tx *catalog.Tx, siteURL string, modTime time.Time) error {
	if err := tx.SetMeta(catalog.MetaPackageSite, siteURL); err != nil {
		return err
	}
	if modTime.IsZero() {
		modTime = time.Now()
	}
	return tx.SetMeta(catalog.MetaLastModified, strconv.FormatInt(modTime.Unix(), 10))
}

func (e *Engine) syncFull(ctx context.Context, siteURL, catalogPath string, since time.Time, verifier signature.Verifier) (Outcome, error) {
	snap, err := fetchSnapshot(ctx, e.fetcher, e.tmpDir, siteURL, RepoArchive, e.ext(), since)
	if errors.Is(err, errors.ErrNotModified) {
		return UpToDate, nil
	}
	if err != nil {
		return UpToDate, err
	}
	defer snap.Close()

	stage := newStaging(catalogPath)
	defer stage.discard()

	out, err := os.OpenFile(stage.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fsutil.FileModeSecure)
	if err != nil {
		return UpToDate, errors.IO("create staging catalog", stage.path, err)
	}
	err = snap.copyEntry(ctx, RepoEntry, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = errors.IO("write staging catalog", stage.path, cerr)
	}
	if err != nil {
		return UpToDate, err
	}
	if err := e.verifyFile(ctx, snap, verifier, stage.path); err != nil {
		return UpToDate, err
	}

	c, err := catalog.Open(ctx, stage.path, catalog.ModeReadWrite)
	if err != nil {
		return UpToDate, err
	}
	defer c.Close()

	schema, err := c.Meta(ctx, catalog.MetaSchemaVersion)
	if err != nil {
		return UpToDate, err
	}
	if !version.SchemaCompatible(schema) {
		return UpToDate, errors.Integrity("check catalog schema", snap.name, fmt.Errorf("unsupported schema version %s", schema))
	}
	archs, err := c.Archs(ctx)
	if err != nil {
		return UpToDate, err
	}
	for _, arch := range archs {
		if arch != e.abi {
			return UpToDate, incompatibleArch(arch, e.abi)
		}
	}
	if err := c.Update(ctx, func(tx *catalog.Tx) error {
		return stampMeta(tx, siteURL, snap.modTime)
	}); err != nil {
		return UpToDate, err
	}
	if err := c.Close(); err != nil {
		return UpToDate, errors.IO("close staging catalog", stage.path, err)
	}
	if err := stage.commit(catalogPath, snap.modTime); err != nil {
		return UpToDate, err
	}
	return Updated, nil
}

func (e *Engine) verifyFile(ctx context.Context, snap *snapshot, verifier signature.Verifier, path string) error {
	if verifier == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.IO("verify signature", path, err)
	}
	defer f.Close()
	return snap.verify(ctx, verifier, f)
}

func incompatibleArch(arch, abi string) error {
	return errors.Integrity("check architecture", arch, fmt.Errorf("incompatible architecture, expected %s", abi))
}

func (e *Engine) syncIncremental(ctx context.Context, siteURL, catalogPath string, since time.Time, verifier signature.Verifier) (Outcome, error) {
	digests, err := fetchSnapshot(ctx, e.fetcher, e.tmpDir, siteURL, DigestsArchive, e.ext(), since)
	switch {
	case errors.Is(err, errors.ErrNotModified):
		return UpToDate, nil
	case errors.Is(err, errors.ErrNotFound):
		return UpToDate, errNoDigests
	case err != nil:
		return UpToDate, err
	}
	defer digests.Close()

	site, err := fetchSnapshot(ctx, e.fetcher, e.tmpDir, siteURL, PackageSiteArchive, e.ext(), time.Time{})
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return UpToDate, errNoDigests
	case err != nil:
		return UpToDate, err
	}
	defer site.Close()

	digestData, err := digests.readEntry(ctx, DigestsEntry)
	if err != nil {
		return UpToDate, err
	}
	if err := digests.verify(ctx, verifier, bytes.NewReader(digestData)); err != nil {
		return UpToDate, err
	}
	manifests, err := fsutil.AnonymousTemp(e.tmpDir, "pkgng-packagesite-*")
	if err != nil {
		return UpToDate, errors.IO("spool packagesite", siteURL, err)
	}
	defer manifests.Close()
	if err := site.copyEntry(ctx, PackageSiteEntry, manifests); err != nil {
		return UpToDate, err
	}
	if verifier != nil {
		if err := fsutil.Rewind(manifests); err != nil {
			return UpToDate, errors.IO("spool packagesite", siteURL, err)
		}
		if err := site.verify(ctx, verifier, manifests); err != nil {
			return UpToDate, err
		}
	}

	stage := newStaging(catalogPath)
	defer stage.discard()
	if err := fsutil.Copy(catalogPath, stage.path); err != nil {
		return UpToDate, errors.IO("copy catalog", catalogPath, err)
	}
	c, err := catalog.Open(ctx, stage.path, catalog.ModeReadWrite)
	if err != nil {
		return UpToDate, err
	}
	defer c.Close()

	actions, err := Diff(c.Records(ctx), ParseDigests(bytes.NewReader(digestData)))
	if err != nil {
		return UpToDate, err
	}

	remote := make(map[string]*model.Package, len(actions))
	for _, a := range actions {
		if a.Type == ActionDelete {
			continue
		}
		p, err := readManifest(manifests, a.Offset)
		if err != nil {
			return UpToDate, err
		}
		if p.Origin != a.Origin {
			return UpToDate, errors.Integrity("read manifest", a.Origin,
				fmt.Errorf("offset %d holds %s", a.Offset, p.Origin))
		}
		if p.Arch != e.abi {
			return UpToDate, incompatibleArch(p.Arch, e.abi)
		}
		if p.Digest != "" && p.Digest != a.Digest {
			return UpToDate, errors.Integrity("read manifest", a.Origin,
				fmt.Errorf("manifest digest %s, digests list has %s", p.Digest, a.Digest))
		}
		p.Digest = a.Digest
		remote[a.Origin] = p
	}

	var inserted, upgraded, deleted int
	err = c.Update(ctx, func(tx *catalog.Tx) error {
		for _, a := range actions {
			var err error
			switch a.Type {
			case ActionInsert:
				err = tx.Insert(remote[a.Origin])
				inserted++
			case ActionUpgrade:
				err = tx.Replace(remote[a.Origin])
				upgraded++
			case ActionDelete:
				err = tx.Delete(a.Origin)
				deleted++
			}
			if err != nil {
				return err
			}
		}
		return stampMeta(tx, siteURL, digests.modTime)
	})
	if err != nil {
		return UpToDate, err
	}
	logger.Info("catalog reconciled", logger.Fields{
		"inserted": inserted, "upgraded": upgraded, "deleted": deleted,
	})
	if err := c.Close(); err != nil {
		return UpToDate, errors.IO("close staging catalog", stage.path, err)
	}
	if err := stage.commit(catalogPath, digests.modTime); err != nil {
		return UpToDate, err
	}
	return Updated, nil
}

// UpdateAll syncs every enabled repository. It returns how many catalogs
// changed and the failures of all repositories that could not be synced.
func (e *Engine) UpdateAll(ctx context.Context, force bool) (int, error) {
	var result *multierror.Error
	updated := 0
	for _, repo := range e.cfg.EnabledRepositories() {
		outcome, err := e.Sync(ctx, repo.Name, repo.URL, force)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", repo.Name, err))
			continue
		}
		if outcome == Updated {
			updated++
		}
	}
	return updated, result.ErrorOrNil()
}
