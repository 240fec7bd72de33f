package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// ErrRequired is returned when removing a package would break installed dependents.
var ErrRequired = errors.New("required by installed packages")

// PlanRemoval queues removal of the installed origins with dependents ahead
// of their dependencies. recursive also removes every package that depends
// on a removed one; otherwise such dependents fail the plan unless force is set.
func PlanRemoval(ctx context.Context, installed Installed, origins []string, recursive, force bool) (*model.JobSet, error) {
	requested := make(map[string]bool, len(origins))
	for _, origin := range origins {
		ok, err := installed.Has(ctx, origin)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.NotFound("remove package", origin, fmt.Errorf("not installed"))
		}
		requested[origin] = true
	}

	set := model.NewJobSet()
	visiting := make(map[string]bool)
	var visit func(origin string) error
	visit = func(origin string) error {
		if set.Contains(origin) || visiting[origin] {
			return nil
		}
		visiting[origin] = true
		defer delete(visiting, origin)

		dependents, err := installed.ReverseDeps(ctx, origin)
		if err != nil {
			return err
		}
		var blocking []string
		for _, d := range dependents {
			switch {
			case recursive || requested[d.Origin]:
				if err := visit(d.Origin); err != nil {
					return err
				}
			case !force:
				blocking = append(blocking, d.NameVersion())
			}
		}
		if len(blocking) > 0 {
			return fmt.Errorf("%w: %s is required by %s", ErrRequired, origin, strings.Join(blocking, ", "))
		}

		p, err := installed.Get(ctx, origin)
		if err != nil {
			return err
		}
		set.Add(&model.Job{Type: model.JobRemove, Package: p, OldVersion: p.Version, OldFlatSize: p.FlatSize})
		return nil
	}

	for _, origin := range origins {
		if err := visit(origin); err != nil {
			return nil, err
		}
	}
	if set.Len() == 0 {
		return set, errors.ErrNothingToDo
	}
	return set, nil
}
