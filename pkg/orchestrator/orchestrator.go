// Package orchestrator applies job sets to the installed system: it fetches
// package files, runs their scripts, extracts payloads and records the
// result in the installed-package catalog.
package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/download"
	"github.com/glorpus-work/pkgng/pkg/elfscan"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fetch"
	"github.com/glorpus-work/pkgng/pkg/hooks"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/pkgfile"
	"github.com/glorpus-work/pkgng/pkg/usergroup"
)

// errDependencyFailed marks jobs skipped because a job they depend on failed.
var errDependencyFailed = errors.New("dependency failed")

// Applier applies job sets one job at a time.
type Applier struct {
	cfg         *config.Config
	store       Store
	downloads   *download.Manager
	concurrency int
	scripts     hooks.Runner
	users       usergroup.Provisioner
	analyser    *elfscan.Analyser
	Hooks       Hooks // Hooks for progress and event notifications
}

// Option configures an Applier.
type Option func(*Applier)

// WithScripts replaces the tengo script runner.
func WithScripts(r hooks.Runner) Option {
	return func(a *Applier) { a.scripts = r }
}

// WithProvisioner replaces the logging user and group provisioner.
func WithProvisioner(p usergroup.Provisioner) Option {
	return func(a *Applier) { a.users = p }
}

// WithFetchConcurrency sets the number of package files fetched in parallel.
func WithFetchConcurrency(n int) Option {
	return func(a *Applier) { a.concurrency = n }
}

// WithHooks sets the progress callbacks.
func WithHooks(h Hooks) Option {
	return func(a *Applier) { a.Hooks = h }
}

// NewApplier creates an applier installing below cfg's root directory and
// recording packages in store.
func NewApplier(cfg *config.Config, store Store, fetcher fetch.Fetcher, opts ...Option) *Applier {
	a := &Applier{
		cfg:       cfg,
		store:     store,
		downloads: download.NewManager(fetcher),
		scripts:   hooks.NewTengoExecutor(cfg.Settings.RootDir, nil),
		users:     usergroup.LogProvisioner{},
		analyser:  elfscan.NewAnalyser(store, cfg.Settings.RootDir),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply fetches the remote package files of set and then runs its jobs in
// order. Each job commits on its own; a failed job is recorded and later jobs
// continue. Jobs depending on a failed job, or whose file could not be
// fetched, are skipped unless force is set. The returned error is only
// non-nil when the run itself could not proceed; job failures are reported
// in the Result.
func (a *Applier) Apply(ctx context.Context, set *model.JobSet, force bool) (*Result, error) {
	res := &Result{}
	failed := make(map[string]*model.Job)
	files, fetchErrs := a.prefetch(ctx, set)

	for job := range set.All() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if blocker := blockedBy(job, failed); blocker != "" && !force {
			err := fmt.Errorf("%w: %s", errDependencyFailed, blocker)
			logger.Warn("skipping job", logger.Fields{"origin": job.Origin(), "reason": err.Error()})
			emit(a.Hooks, Event{Phase: "skipped", Origin: job.Origin(), Msg: err.Error()})
			res.Failed = append(res.Failed, Failure{Job: job, Err: err})
			failed[job.Origin()] = job
			continue
		}

		err := fetchErrs[job.Origin()]
		switch {
		case err != nil:
		case job.Type == model.JobRemove:
			err = a.remove(ctx, job)
		default:
			err = a.install(ctx, job, files[job.Origin()], force)
		}
		if err != nil {
			logger.Error("job failed", logger.Fields{"origin": job.Origin(), "job": job.Type.String(), "error": err.Error()})
			emit(a.Hooks, Event{Phase: "failed", Origin: job.Origin(), Msg: err.Error()})
			res.Failed = append(res.Failed, Failure{Job: job, Err: err})
			failed[job.Origin()] = job
			continue
		}
		res.Applied = append(res.Applied, job)
	}
	emit(a.Hooks, Event{Phase: "done", Msg: res.Status().String()})
	return res, nil
}

// blockedBy returns the origin of a failed job that job depends on. An
// install depends on its dependencies; a removal depends on the removal of
// every package that required it.
func blockedBy(job *model.Job, failed map[string]*model.Job) string {
	if len(failed) == 0 {
		return ""
	}
	if job.Type == model.JobRemove {
		for origin, f := range failed {
			if f.Type == model.JobRemove && f.Package.HasDep(job.Origin()) {
				return origin
			}
		}
		return ""
	}
	for _, d := range job.Package.Deps {
		if f, ok := failed[d.Origin]; ok && f.Type != model.JobRemove {
			return d.Origin
		}
	}
	return ""
}

// prefetch downloads the remote package files of set into the cache. It
// returns the local file of every install job and the fetch errors by origin.
func (a *Applier) prefetch(ctx context.Context, set *model.JobSet) (map[string]string, map[string]error) {
	files := make(map[string]string)
	var items []download.Item
	for job := range set.All() {
		p := job.Package
		if job.Type == model.JobRemove {
			continue
		}
		if !fetch.IsURL(p.Location) {
			files[p.Origin] = p.Location
			continue
		}
		emit(a.Hooks, Event{Phase: "fetching", Origin: p.Origin, Msg: p.Location})
		items = append(items, download.Item{ID: p.Origin, URL: p.Location, Dest: cachePath(a.cfg.Settings.CacheDir, p)})
	}
	if len(items) == 0 {
		return files, nil
	}
	paths, err := a.downloads.FetchAll(ctx, items, download.Options{Concurrency: a.concurrency})
	maps.Copy(files, paths)
	return files, download.Failures(err)
}

func (a *Applier) install(ctx context.Context, job *model.Job, local string, force bool) error {
	upgrade := job.Type == model.JobUpgrade
	phase := "installing"
	if upgrade {
		phase = "upgrading"
	}

	if local == "" {
		return errors.NotFound("locate package", job.Package.NameVersion(), fmt.Errorf("no package file"))
	}
	p, err := pkgfile.Open(ctx, local)
	if err != nil {
		return err
	}
	if p.Origin != job.Origin() {
		return errors.Integrity("install", local, fmt.Errorf("package origin %s, expected %s", p.Origin, job.Origin()))
	}
	if p.Arch != a.cfg.Settings.ABI && a.cfg.Settings.ABI != "" && !force {
		return errors.Integrity("install", p.NameVersion(), fmt.Errorf("wrong architecture %s, expected %s", p.Arch, a.cfg.Settings.ABI))
	}
	p.Automatic = job.Automatic
	if p.RepoPath == "" {
		p.RepoPath = job.Package.RepoPath
	}
	emit(a.Hooks, Event{Phase: phase, Origin: p.Origin, Msg: p.NameVersion()})

	if !force {
		if err := a.checkConflicts(ctx, p); err != nil {
			return err
		}
	}
	if err := a.scripts.Run(ctx, hooks.PreInstall, p, upgrade); err != nil {
		return err
	}
	if err := usergroup.Provision(ctx, a.users, p); err != nil {
		return err
	}

	// The row goes in before the payload is extracted so a rejected
	// insert leaves the root untouched; a failed extraction rolls it back.
	var old *model.Package
	err = a.store.Update(ctx, func(tx *catalog.Tx) error {
		if force {
			taken, err := tx.TakeFiles(p)
			if err != nil {
				return err
			}
			for path, owner := range taken {
				logger.Warn("overwriting file of another package", logger.Fields{"file": path, "owner": owner})
			}
		}
		if upgrade {
			prev, err := tx.Get(p.Origin)
			if err != nil && !errors.Is(err, errors.ErrNotFound) {
				return err
			}
			old = prev
			if err := tx.Replace(p); err != nil {
				return err
			}
		} else if err := tx.Insert(p); err != nil {
			return err
		}

		if _, err := pkgfile.Extract(ctx, local, a.cfg.Settings.RootDir); err != nil {
			return err
		}
		changed, err := a.analyse(ctx, p)
		if err != nil || !changed {
			return err
		}
		return tx.Replace(p)
	})
	if err != nil {
		return err
	}
	if old != nil {
		a.removeStale(old, p)
	}

	if err := a.scripts.Run(ctx, hooks.PostInstall, p, upgrade); err != nil {
		// The package is recorded; a failing post script only warns.
		logger.Warn("post-install script failed", logger.Fields{"origin": p.Origin, "error": err.Error()})
	}
	logger.Success(fmt.Sprintf("%s %s", phase, p.NameVersion()), logger.Fields{"origin": p.Origin})
	return nil
}

func (a *Applier) checkConflicts(ctx context.Context, p *model.Package) error {
	for _, f := range p.Files {
		owner, err := a.store.WhichOwnsFile(ctx, f.Path)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if owner.Origin == p.Origin {
			continue
		}
		return errors.Integrity("install", p.NameVersion(), fmt.Errorf("%s conflicts with %s", f.Path, owner.NameVersion()))
	}
	return nil
}

// analyse runs the enabled ELF analyses over the extracted files of p and
// reports whether p changed.
func (a *Applier) analyse(ctx context.Context, p *model.Package) (bool, error) {
	var modes []elfscan.Mode
	if a.cfg.Settings.AddMissingDeps {
		modes = append(modes, elfscan.AddMissingDeps)
	}
	if a.cfg.Settings.RegisterShlibs {
		modes = append(modes, elfscan.RegisterShlibs)
	}
	changed := false
	for _, mode := range modes {
		c, err := a.analyser.Analyse(ctx, p, mode)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (a *Applier) remove(ctx context.Context, job *model.Job) error {
	p := job.Package
	emit(a.Hooks, Event{Phase: "removing", Origin: p.Origin, Msg: p.NameVersion()})

	if err := a.scripts.Run(ctx, hooks.PreDeinstall, p, false); err != nil {
		return err
	}
	if err := a.store.Update(ctx, func(tx *catalog.Tx) error {
		return tx.Delete(p.Origin)
	}); err != nil {
		return err
	}
	a.removeFiles(p.Files, p.Dirs)
	if err := a.scripts.Run(ctx, hooks.PostDeinstall, p, false); err != nil {
		logger.Warn("post-deinstall script failed", logger.Fields{"origin": p.Origin, "error": err.Error()})
	}
	logger.Success("removed "+p.NameVersion(), logger.Fields{"origin": p.Origin})
	return nil
}

// removeStale deletes the files of old that next no longer ships.
func (a *Applier) removeStale(old, next *model.Package) {
	var stale []model.File
	for _, f := range old.Files {
		if !slices.ContainsFunc(next.Files, func(n model.File) bool { return n.Path == f.Path }) {
			stale = append(stale, f)
		}
	}
	var dirs []string
	for _, d := range old.Dirs {
		if !slices.Contains(next.Dirs, d) {
			dirs = append(dirs, d)
		}
	}
	a.removeFiles(stale, dirs)
}

// removeFiles deletes files and then the listed directories that are left
// empty, deepest first. Failures are logged.
func (a *Applier) removeFiles(files []model.File, dirs []string) {
	for _, f := range files {
		target := a.rootPath(f.Path)
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			logger.Warn("cannot remove file", logger.Fields{"file": target, "error": err.Error()})
		}
	}
	dirs = slices.Clone(dirs)
	slices.SortFunc(dirs, func(x, y string) int { return len(y) - len(x) })
	for _, d := range dirs {
		if err := os.Remove(a.rootPath(d)); err != nil && !os.IsNotExist(err) {
			logger.Debugf("keeping directory %s: %v", d, err)
		}
	}
}

func (a *Applier) rootPath(p string) string {
	return filepath.Join(a.cfg.Settings.RootDir, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}
