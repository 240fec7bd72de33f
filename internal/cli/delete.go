package cli

import (
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/jobs"
)

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	var (
		flags     applyFlags
		recursive bool
	)

	cmd := &cobra.Command{
		Use:     "delete [-fnqRy] <origin|name>...",
		Aliases: []string{"remove"},
		Short:   "Remove installed packages",
		Long: `Remove installed packages. Packages depending on them must be
removed as well (-R) unless the removal is forced (-f).`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args, recursive, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "Also remove packages depending on the given ones")

	return cmd
}

func runDelete(cmd *cobra.Command, args []string, recursive bool, flags applyFlags) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local, err := openLocal(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer local.Close()

	origins := make([]string, 0, len(args))
	for _, arg := range args {
		origin, err := resolveOrigin(ctx, local, arg)
		if err != nil {
			return err
		}
		origins = append(origins, origin)
	}

	set, err := jobs.PlanRemoval(ctx, local, origins, recursive, flags.force)
	if err != nil {
		return err
	}
	return applyJobs(ctx, cmd, cfg, local, set, flags, "Proceed with deleting packages?")
}
