package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/repository"
)

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update [-f]",
		Short: "Synchronize the repository catalogs",
		Long: `Fetch the catalogs of all enabled repositories that changed since
the last update. -f fetches them even when they are up to date.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force a full download of every catalog")

	return cmd
}

func runUpdate(cmd *cobra.Command, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.EnabledRepositories()) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No active remote repositories configured.")
		return errors.ErrNothingToDo
	}
	if err := ensureABI(cfg); err != nil {
		return err
	}

	updated, err := repository.NewEngine(cfg, newFetcher(cfg), cfg.Settings.ABI).UpdateAll(cmd.Context(), force)
	if err != nil {
		return err
	}
	if updated == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All repositories are up to date.")
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d repository catalog(s) updated.\n", updated)
	return nil
}
