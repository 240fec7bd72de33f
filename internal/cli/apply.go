package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/orchestrator"
)

// applyFlags are shared by the commands that change installed packages.
type applyFlags struct {
	force     bool
	dryRun    bool
	quiet     bool
	yes       bool
	noScripts bool
}

func (f *applyFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "Force the operation")
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "Only show what would be done")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Only print failures")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Assume yes when asked for confirmation")
}

// applyJobs prints the summary of set, asks for confirmation and applies it.
func applyJobs(ctx context.Context, cmd *cobra.Command, cfg *config.Config, local *catalog.Catalog, set *model.JobSet, flags applyFlags, question string) error {
	if set.Len() == 0 {
		return errors.ErrNothingToDo
	}
	out := cmd.OutOrStdout()
	if !flags.quiet || flags.dryRun {
		_, _ = fmt.Fprintln(out, "The following packages will be affected:")
		if err := orchestrator.Summarize(set, cfg.Settings.CacheDir).Print(out); err != nil {
			return err
		}
	}
	if flags.dryRun {
		return nil
	}

	ok, err := confirm(cfg, flags.yes, question)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Aborted.")
		return errors.ErrNothingToDo
	}

	opts := []orchestrator.Option{orchestrator.WithHooks(progressHooks(out, flags.quiet))}
	if flags.noScripts {
		opts = append(opts, orchestrator.WithScripts(noScripts{}))
	}
	res, err := orchestrator.NewApplier(cfg, local, newFetcher(cfg), opts...).Apply(ctx, set, flags.force)
	if err != nil {
		return err
	}
	if code := res.ExitCode(); code != ExitOK {
		return &ExitError{Code: code, Err: res.Err()}
	}
	return nil
}
