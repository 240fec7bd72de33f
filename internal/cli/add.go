package cli

import (
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/jobs"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// NewAddCmd creates the add command.
func NewAddCmd() *cobra.Command {
	var (
		flags     applyFlags
		automatic bool
	)

	cmd := &cobra.Command{
		Use:   "add [-AfInqy] <pkg-file|url>...",
		Short: "Install packages from files or URLs",
		Long: `Install package files given as local paths or URLs. Missing
dependencies are looked up next to the package that needs them.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args, automatic, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&automatic, "automatic", "A", false, "Mark the packages as automatically installed")
	cmd.Flags().BoolVarP(&flags.noScripts, "no-scripts", "I", false, "Do not run package scripts")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string, automatic bool, flags applyFlags) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureABI(cfg); err != nil {
		return err
	}
	local, err := openLocal(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer local.Close()

	reqs := make([]jobs.Request, len(args))
	for i, arg := range args {
		reqs[i] = jobs.Request{Location: arg, Automatic: automatic}
	}
	set := model.NewJobSet()
	opener := jobs.NewFileOpener(newFetcher(cfg), cfg.Settings.CacheDir)
	report, err := jobs.NewBuilder(local, opener, flags.force).Build(ctx, reqs, set)
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		warnf(cmd, "%v", f)
	}

	if err := applyJobs(ctx, cmd, cfg, local, set, flags, "Proceed with installing packages?"); err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return &ExitError{Code: ExitPartial, Err: report.Failed[0]}
	}
	return nil
}
