package jobs

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/version"
)

// Request is one package the user asked to add.
type Request struct {
	// Location is a local path or an http, https, ftp or file URL.
	Location  string
	Automatic bool
}

// Failure is a top-level request that could not be resolved.
type Failure struct {
	Request string
	Err     error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Request, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// BuildReport lists what a closure build added and which requests failed.
type BuildReport struct {
	Added  int
	Failed []Failure
}

// Builder expands add requests into install jobs with their dependency closure.
type Builder struct {
	installed Installed
	opener    Opener
	force     bool
}

// NewBuilder creates a closure builder. With force, a failed request does not
// abort the batch and installed packages are reinstalled when requested.
func NewBuilder(installed Installed, opener Opener, force bool) *Builder {
	return &Builder{installed: installed, opener: opener, force: force}
}

// walk is the state of one top-level request. Jobs land in pending and are
// moved to the shared set only when the whole request resolved.
type walk struct {
	set      *model.JobSet
	pending  *model.JobSet
	visiting map[string]bool
}

func (w *walk) queued(origin string) bool {
	return w.set.Contains(origin) || w.pending.Contains(origin) || w.visiting[origin]
}

// Build appends the closure of every request to set, dependencies first. It
// returns errors.ErrNothingToDo when nothing was added.
func (b *Builder) Build(ctx context.Context, reqs []Request, set *model.JobSet) (*BuildReport, error) {
	report := &BuildReport{}
	for _, req := range reqs {
		w := &walk{set: set, pending: model.NewJobSet(), visiting: make(map[string]bool)}
		if err := b.request(ctx, req, w); err != nil {
			failure := Failure{Request: req.Location, Err: err}
			report.Failed = append(report.Failed, failure)
			logger.Error("cannot resolve request", logger.Fields{"request": req.Location, "error": err.Error()})
			if !b.force {
				return report, failure
			}
			continue
		}
		for job := range w.pending.All() {
			set.Add(job)
		}
		report.Added += w.pending.Len()
	}

	if report.Added == 0 {
		if len(report.Failed) > 0 {
			var result *multierror.Error
			for _, f := range report.Failed {
				result = multierror.Append(result, f)
			}
			return report, result.ErrorOrNil()
		}
		logger.Info("Nothing to do")
		return report, errors.ErrNothingToDo
	}
	return report, nil
}

func (b *Builder) request(ctx context.Context, req Request, w *walk) error {
	p, err := b.opener.Open(ctx, req.Location)
	if err != nil {
		return err
	}
	if w.set.Contains(p.Origin) {
		logger.Debugf("%s already queued", p.Origin)
		return nil
	}

	job := &model.Job{Type: model.JobInstall, Package: p, Automatic: req.Automatic}
	installed, err := b.installed.Get(ctx, p.Origin)
	switch {
	case errors.Is(err, errors.ErrNotFound):
	case err != nil:
		return err
	case installed.Version == p.Version && !b.force:
		logger.Warn("package already installed", logger.Fields{"origin": p.Origin, "version": p.Version})
		return nil
	default:
		job.Type = model.JobUpgrade
		job.OldVersion = installed.Version
		job.OldFlatSize = installed.FlatSize
		job.Automatic = installed.Automatic && req.Automatic
		if version.Compare(p.Version, installed.Version) < 0 {
			logger.Warn("downgrading package", logger.Fields{"origin": p.Origin, "from": installed.Version, "to": p.Version})
		}
	}
	return b.visit(ctx, req.Location, job, w)
}

// visit resolves the dependencies of job's package depth first and queues
// job after them.
func (b *Builder) visit(ctx context.Context, source string, job *model.Job, w *walk) error {
	p := job.Package
	w.visiting[p.Origin] = true
	defer delete(w.visiting, p.Origin)

	for _, dep := range p.Deps {
		if dep.Origin == p.Origin || w.queued(dep.Origin) {
			continue
		}
		ok, err := b.installed.Has(ctx, dep.Origin)
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		location := siblingLocation(source, dep.Name+"-"+dep.Version)
		dp, err := b.opener.Open(ctx, location)
		if err != nil {
			return errors.NotFound("resolve dependency", dep.Origin, fmt.Errorf("required by %s: %w", p.NameVersion(), err))
		}
		if dp.Origin != dep.Origin {
			return errors.NotFound("resolve dependency", dep.Origin,
				fmt.Errorf("%s holds %s instead", location, dp.Origin))
		}
		logger.Debug("adding dependency", logger.Fields{"origin": dp.Origin, "required_by": p.Origin})
		if err := b.visit(ctx, location, &model.Job{Type: model.JobInstall, Package: dp, Automatic: true}, w); err != nil {
			return err
		}
	}
	w.pending.Add(job)
	return nil
}
