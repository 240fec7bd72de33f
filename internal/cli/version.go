package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/version"
)

const (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var test bool

	cmd := &cobra.Command{
		Use:   "version [-t <version> <version>]",
		Short: "Show version information or compare versions",
		Long: `Display version information for pkgng. With -t compare two package
versions and print <, = or >.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !test {
				if len(args) != 0 {
					return usageError(fmt.Errorf("unexpected arguments, use -t to compare versions"))
				}
				_, _ = fmt.Fprintf(out, "pkgng version %s\n", Version)
				_, _ = fmt.Fprintf(out, "Build date: %s\n", BuildDate)
				_, _ = fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
				return nil
			}
			if len(args) != 2 {
				return usageError(fmt.Errorf("-t needs exactly two versions"))
			}
			switch version.Compare(args[0], args[1]) {
			case -1:
				_, _ = fmt.Fprintln(out, "<")
			case 1:
				_, _ = fmt.Fprintln(out, ">")
			default:
				_, _ = fmt.Fprintln(out, "=")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&test, "test", "t", false, "Compare two versions")

	return cmd
}
