package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/internal/cli"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

var (
	configPath string
	verbose    bool
	noColor    bool
	options    []string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil && !errors.Is(err, errors.ErrNothingToDo) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkgng",
		Short: "A binary package manager",
		Long: `pkgng installs, upgrades and removes binary packages:
- Repositories: update, search, upgrade, fetch
- Local packages: add, delete, info, set, analyse, clean
- Tooling: repo, arch, version, config`,
		SilenceUsage:     true,
		SilenceErrors:    true,
		TraverseChildren: true,
		// Traversal skips cobra's unknown-command check, so the root
		// validates its own arguments.
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &cli.ExitError{Code: cli.ExitUsage, Err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	// -o is only accepted before the command name; several commands use -o themselves.
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "override a setting (KEY=VALUE)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cli.ExitError{Code: cli.ExitUsage, Err: err}
	})

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.NoColor = &noColor
	cli.Options = &options

	// Add subcommands
	cmd.AddCommand(
		cli.NewUpdateCmd(),
		cli.NewAddCmd(),
		cli.NewUpgradeCmd(),
		cli.NewFetchCmd(),
		cli.NewDeleteCmd(),
		cli.NewSetCmd(),
		cli.NewSearchCmd(),
		cli.NewInfoCmd(),
		cli.NewAnalyseCmd(),
		cli.NewCleanCmd(),
		cli.NewRepoCmd(),
		cli.NewArchCmd(),
		cli.NewVersionCmd(),
		cli.NewConfigCmd(),
	)

	return cmd
}
