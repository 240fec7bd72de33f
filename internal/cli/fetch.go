package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/download"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/jobs"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var (
		deps, quiet, yes bool
		jobsN            int
	)

	cmd := &cobra.Command{
		Use:   "fetch [-dqy] [-j n] <origin|name>...",
		Short: "Download packages into the cache",
		Long: `Download packages offered by the synced repositories into the
package cache without installing them. -d also fetches their dependencies.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, deps, quiet, yes, jobsN)
		},
	}

	cmd.Flags().BoolVarP(&deps, "dependencies", "d", false, "Also fetch dependencies")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print failures")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Assume yes when asked for confirmation")
	cmd.Flags().IntVarP(&jobsN, "jobs", "j", 0, "Number of parallel downloads")

	return cmd
}

func runFetch(cmd *cobra.Command, args []string, deps, quiet, yes bool, concurrency int) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mirrors, closeAll := openRepositories(ctx, cfg)
	defer closeAll()
	if len(mirrors) == 0 {
		return errors.NotFound("fetch", "", errors.New("no synced repositories, run update first"))
	}

	origins := make([]string, 0, len(args))
	for _, arg := range args {
		origin, err := resolveRemote(ctx, mirrors, arg)
		if err != nil {
			return err
		}
		origins = append(origins, origin)
	}
	pkgs, err := jobs.PlanFetch(ctx, jobRepositories(mirrors), origins, deps)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var items []download.Item
	var size int64
	for _, p := range pkgs {
		dest := cfg.CachePath(p.RepoPath)
		if info, err := os.Stat(dest); err == nil && info.Size() == p.PkgSize && p.PkgSize > 0 {
			continue
		}
		items = append(items, download.Item{ID: p.NameVersion(), URL: p.Location, Dest: dest})
		size += p.PkgSize
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "All packages are already in the cache.")
		return errors.ErrNothingToDo
	}
	if !quiet {
		_, _ = fmt.Fprintln(out, "The following packages will be fetched:")
		for _, it := range items {
			_, _ = fmt.Fprintf(out, "\t%s\n", it.ID)
		}
		_, _ = fmt.Fprintf(out, "\n%s to be downloaded.\n", humanize.Bytes(uint64(size)))
	}
	ok, err := confirm(cfg, yes, "Proceed with fetching packages?")
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Aborted.")
		return errors.ErrNothingToDo
	}

	paths, err := download.NewManager(newFetcher(cfg)).FetchAll(ctx, items, download.Options{Concurrency: concurrency})
	for id, cause := range download.Failures(err) {
		warnf(cmd, "%s: %v", id, cause)
	}
	if !quiet {
		_, _ = fmt.Fprintf(out, "%d of %d packages fetched.\n", len(paths), len(items))
	}
	switch {
	case err == nil:
		return nil
	case len(paths) > 0:
		return &ExitError{Code: ExitPartial, Err: err}
	default:
		return err
	}
}

// resolveRemote maps a package name to an origin offered by the mirrors.
func resolveRemote(ctx context.Context, mirrors []mirror, arg string) (string, error) {
	if strings.Contains(arg, "/") {
		return arg, nil
	}
	var found []string
	for _, m := range mirrors {
		pkgs, err := m.catalog.FindByName(ctx, arg)
		if err != nil {
			return "", err
		}
		for _, p := range pkgs {
			if !slices.Contains(found, p.Origin) {
				found = append(found, p.Origin)
			}
		}
	}
	switch len(found) {
	case 0:
		return "", errors.NotFound("find package", arg, nil)
	case 1:
		return found[0], nil
	default:
		return "", usageError(fmt.Errorf("%s is ambiguous: %s", arg, strings.Join(found, ", ")))
	}
}
