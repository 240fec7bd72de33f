package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/cache"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

// NewCleanCmd creates the clean command.
func NewCleanCmd() *cobra.Command {
	var all, dryRun, quiet, yes bool

	cmd := &cobra.Command{
		Use:   "clean [-anqy]",
		Short: "Remove outdated packages from the cache",
		Long: `Remove cached package files the synced repositories no longer
offer, along with interrupted downloads. -a empties the whole cache.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClean(cmd, all, dryRun, quiet, yes)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Remove every cached file")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Only show what would be removed")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print failures")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Assume yes when asked for confirmation")

	return cmd
}

func runClean(cmd *cobra.Command, all, dryRun, quiet, yes bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr := cache.NewManager(cfg.Settings.CacheDir)

	var keep func(string) bool
	if !all {
		offered, err := offeredPaths(ctx, cfg)
		if err != nil {
			return err
		}
		keep = func(rel string) bool { return offered[rel] }
	}
	stale, err := mgr.Stale(keep)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(stale) == 0 {
		if !quiet {
			_, _ = fmt.Fprintln(out, "Nothing to do.")
		}
		return errors.ErrNothingToDo
	}
	var size int64
	for _, e := range stale {
		size += e.Size
	}
	if !quiet || dryRun {
		_, _ = fmt.Fprintln(out, "The following package files will be deleted:")
		for _, e := range stale {
			_, _ = fmt.Fprintf(out, "\t%s\n", e.Rel)
		}
		_, _ = fmt.Fprintf(out, "The cleanup will free %s\n", humanize.Bytes(uint64(size)))
	}
	if dryRun {
		return nil
	}
	ok, err := confirm(cfg, yes, "Proceed with cleaning the cache?")
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Aborted.")
		return errors.ErrNothingToDo
	}

	res := mgr.Remove(stale)
	for _, f := range res.Failed {
		warnf(cmd, "cannot remove %s", f)
	}
	if !quiet {
		_, _ = fmt.Fprintf(out, "Deleted %d file(s), freed %s\n", res.Removed, humanize.Bytes(uint64(res.Freed)))
	}
	if len(res.Failed) > 0 {
		return &ExitError{Code: ExitPartial, Err: errors.IO("clean cache", cfg.Settings.CacheDir, fmt.Errorf("%d file(s) not removed", len(res.Failed)))}
	}
	return nil
}

// offeredPaths returns the repository paths of every package the synced
// repositories currently offer.
func offeredPaths(ctx context.Context, cfg *config.Config) (map[string]bool, error) {
	mirrors, closeAll := openRepositories(ctx, cfg)
	defer closeAll()

	offered := make(map[string]bool)
	for _, m := range mirrors {
		for p, err := range m.catalog.Packages(ctx) {
			if err != nil {
				return nil, err
			}
			if p.RepoPath != "" {
				offered[strings.TrimPrefix(p.RepoPath, "/")] = true
			}
		}
	}
	return offered, nil
}
