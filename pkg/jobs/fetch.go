package jobs

import (
	"context"

	"github.com/glorpus-work/pkgng/pkg/model"
)

// PlanFetch returns the packages of origins as offered by repos, each with
// its Location set to the repository site. With deps the dependencies the
// repositories offer are included ahead of the packages needing them.
func PlanFetch(ctx context.Context, repos []Repository, origins []string, deps bool) ([]*model.Package, error) {
	var out []*model.Package
	seen := make(map[string]bool)

	var visit func(origin string) error
	visit = func(origin string) error {
		if seen[origin] {
			return nil
		}
		seen[origin] = true
		p, err := lookup(ctx, repos, origin)
		if err != nil {
			return err
		}
		if deps {
			for _, d := range p.Deps {
				if err := visit(d.Origin); err != nil {
					return err
				}
			}
		}
		out = append(out, p)
		return nil
	}

	for _, origin := range origins {
		if err := visit(origin); err != nil {
			return nil, err
		}
	}
	return out, nil
}
