package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var (
		byOrigin, byComment, byDesc bool
		repoName                    string
	)

	cmd := &cobra.Command{
		Use:   "search [-o|-c|-d] [-r repo] <pattern>",
		Short: "Search the repository catalogs",
		Long: `Search the synced repository catalogs. The pattern matches
package names unless -o (origin), -c (comment) or -d (description) is given.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := catalog.FieldName
			n := 0
			for _, f := range []struct {
				set   bool
				field catalog.Field
			}{{byOrigin, catalog.FieldOrigin}, {byComment, catalog.FieldComment}, {byDesc, catalog.FieldDescription}} {
				if f.set {
					field = f.field
					n++
				}
			}
			if n > 1 {
				return usageError(fmt.Errorf("-o, -c and -d are mutually exclusive"))
			}
			return runSearch(cmd, field, repoName, args[0])
		},
	}

	cmd.Flags().BoolVarP(&byOrigin, "origin", "o", false, "Match origins")
	cmd.Flags().BoolVarP(&byComment, "comment", "c", false, "Match comments")
	cmd.Flags().BoolVarP(&byDesc, "description", "d", false, "Match descriptions")
	cmd.Flags().StringVarP(&repoName, "repository", "r", "", "Only search the named repository")

	return cmd
}

func runSearch(cmd *cobra.Command, field catalog.Field, repoName, pattern string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if repoName != "" && cfg.Repository(repoName) == nil {
		return usageError(fmt.Errorf("unknown repository %s", repoName))
	}

	mirrors, closeMirrors := openRepositories(ctx, cfg)
	defer closeMirrors()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, TabWidth, ' ', 0)
	found := 0
	for _, m := range mirrors {
		if repoName != "" && m.name != repoName {
			continue
		}
		pkgs, err := m.catalog.Search(ctx, field, pattern)
		if err != nil {
			return errors.Wrapf(err, "repository %s", m.name)
		}
		for _, p := range pkgs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.NameVersion(), p.Origin, truncate(p.Comment, MaxCommentLength))
			found++
		}
	}
	_ = tw.Flush()

	if found == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No packages found matching '%s'\n", pattern)
		return errors.ErrNothingToDo
	}
	return nil
}
