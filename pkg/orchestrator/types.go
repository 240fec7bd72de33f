package orchestrator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/elfscan"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// Store is the installed-package catalog the applier mutates.
type Store interface {
	elfscan.Catalog
	Update(ctx context.Context, fn func(*catalog.Tx) error) error
	WhichOwnsFile(ctx context.Context, filePath string) (*model.Package, error)
}

// Event represents a simple progress notification.
type Event struct {
	Phase  string // fetching|installing|upgrading|removing|skipped|failed|done
	Origin string
	Msg    string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Failure is a job that could not be applied.
type Failure struct {
	Job *model.Job
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Job.Type, f.Job.Package.NameVersion(), f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Status summarises the outcome of an apply run.
type Status int

// Apply outcomes.
const (
	StatusOK Status = iota
	StatusNothingToDo
	StatusPartial
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNothingToDo:
		return "nothing to do"
	default:
		return "partial"
	}
}

// Result lists the jobs applied and the jobs that failed or were skipped.
type Result struct {
	Applied []*model.Job
	Failed  []Failure
}

// Status reports StatusNothingToDo for an empty run, StatusPartial when any
// job failed and StatusOK otherwise.
func (r *Result) Status() Status {
	switch {
	case len(r.Failed) > 0:
		return StatusPartial
	case len(r.Applied) == 0:
		return StatusNothingToDo
	default:
		return StatusOK
	}
}

// ExitCode maps the status to the command exit code: 0, 1 or 3.
func (r *Result) ExitCode() int {
	switch r.Status() {
	case StatusOK:
		return 0
	case StatusNothingToDo:
		return 1
	default:
		return 3
	}
}

// Err aggregates the failures, or returns nil when there are none.
func (r *Result) Err() error {
	var merr *multierror.Error
	for _, f := range r.Failed {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}
