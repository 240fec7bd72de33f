package jobs

import (
	"context"
	"strings"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/version"
)

// Catalog looks packages up by origin.
type Catalog interface {
	Get(ctx context.Context, origin string) (*model.Package, error)
}

// Repository is a synced remote catalog and the site it mirrors.
type Repository struct {
	Name    string
	URL     string
	Catalog Catalog
}

// lookup returns the highest version of origin offered by repos. The
// package's Location is set to its URL on the repository site.
func lookup(ctx context.Context, repos []Repository, origin string) (*model.Package, error) {
	var best *model.Package
	for _, repo := range repos {
		p, err := repo.Catalog.Get(ctx, origin)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "repository %s", repo.Name)
		}
		if best == nil || version.Compare(p.Version, best.Version) > 0 {
			p.Location = strings.TrimRight(repo.URL, "/") + "/" + strings.TrimLeft(p.RepoPath, "/")
			best = p
		}
	}
	if best == nil {
		return nil, errors.NotFound("find package", origin, nil)
	}
	return best, nil
}

// PlanUpgrades queues an upgrade for every installed package a repository
// offers a newer version of, plus installs of dependencies the new versions
// add. With force every installed package found remotely is reinstalled.
func PlanUpgrades(ctx context.Context, installed Installed, repos []Repository, force bool) (*model.JobSet, error) {
	set := model.NewJobSet()
	for local, err := range installed.Packages(ctx) {
		if err != nil {
			return nil, err
		}
		remote, err := lookup(ctx, repos, local.Origin)
		if errors.Is(err, errors.ErrNotFound) {
			logger.Debugf("%s is not offered by any repository", local.Origin)
			continue
		}
		if err != nil {
			return nil, err
		}
		cmp := version.Compare(remote.Version, local.Version)
		if cmp <= 0 && !force {
			if cmp < 0 {
				logger.Debugf("%s: installed %s is newer than %s", local.Origin, local.Version, remote.Version)
			}
			continue
		}
		job := &model.Job{
			Type:        model.JobUpgrade,
			Package:     remote,
			OldVersion:  local.Version,
			OldFlatSize: local.FlatSize,
			Automatic:   local.Automatic,
		}
		if err := queueWithDeps(ctx, installed, repos, job, set, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	if set.Len() == 0 {
		logger.Info("Your packages are up to date")
		return set, errors.ErrNothingToDo
	}
	return set, nil
}

func queueWithDeps(ctx context.Context, installed Installed, repos []Repository, job *model.Job, set *model.JobSet, visiting map[string]bool) error {
	p := job.Package
	visiting[p.Origin] = true
	defer delete(visiting, p.Origin)

	for _, dep := range p.Deps {
		if dep.Origin == p.Origin || set.Contains(dep.Origin) || visiting[dep.Origin] {
			continue
		}
		ok, err := installed.Has(ctx, dep.Origin)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		dp, err := lookup(ctx, repos, dep.Origin)
		if err != nil {
			return errors.Wrapf(err, "dependency of %s", p.NameVersion())
		}
		if err := queueWithDeps(ctx, installed, repos, &model.Job{Type: model.JobInstall, Package: dp, Automatic: true}, set, visiting); err != nil {
			return err
		}
	}
	set.Add(job)
	return nil
}
