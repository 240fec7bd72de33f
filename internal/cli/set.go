package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

// NewSetCmd creates the set command.
func NewSetCmd() *cobra.Command {
	var (
		automatic string
		origin    string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "set [-y] -A 0|1 <origin|name>... | set [-y] -o <old>:<new>",
		Short: "Modify installed package records",
		Long: `Change the automatic flag of installed packages (-A) or move a
package and the dependency records pointing at it to a new origin (-o).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case automatic != "" && origin == "":
				if len(args) == 0 {
					return usageError(fmt.Errorf("-A needs at least one package"))
				}
				return runSetAutomatic(cmd, automatic, args, yes)
			case origin != "" && automatic == "":
				if len(args) != 0 {
					return usageError(fmt.Errorf("-o takes no package arguments"))
				}
				return runSetOrigin(cmd, origin, yes)
			default:
				return usageError(fmt.Errorf("exactly one of -A and -o is required"))
			}
		},
	}

	cmd.Flags().StringVarP(&automatic, "automatic", "A", "", "Set the automatic flag (0 or 1)")
	cmd.Flags().StringVarP(&origin, "origin", "o", "", "Change an origin, given as old:new")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Assume yes when asked for confirmation")

	return cmd
}

func runSetAutomatic(cmd *cobra.Command, value string, args []string, yes bool) error {
	var flag bool
	switch value {
	case "0":
	case "1":
		flag = true
	default:
		return usageError(fmt.Errorf("invalid -A value %q, expected 0 or 1", value))
	}

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

	word := "not automatic"
	if flag {
		word = "automatic"
	}
	ok, err := confirm(cfg, yes, fmt.Sprintf("Mark %s as %s?", strings.Join(origins, ", "), word))
	if err != nil || !ok {
		return err
	}
	err = local.Update(ctx, func(tx *catalog.Tx) error {
		for _, origin := range origins {
			if err := tx.SetAutomatic(origin, flag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, origin := range origins {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s marked as %s\n", origin, word)
	}
	return nil
}

func runSetOrigin(cmd *cobra.Command, spec string, yes bool) error {
	from, to, ok := strings.Cut(spec, ":")
	if !ok || from == "" || to == "" || !strings.Contains(from, "/") || !strings.Contains(to, "/") {
		return usageError(fmt.Errorf("invalid origin change %q, expected category/old:category/new", spec))
	}

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

	p, err := local.Get(ctx, from)
	if err != nil {
		return err
	}
	confirmed, err := confirm(cfg, yes, fmt.Sprintf("Change origin of %s from %s to %s?", p.NameVersion(), from, to))
	if err != nil || !confirmed {
		return err
	}
	if err := local.Update(ctx, func(tx *catalog.Tx) error {
		return tx.ChangeOrigin(from, to)
	}); err != nil {
		if errors.Is(err, errors.ErrIntegrity) {
			return errors.Wrapf(err, "%s is already installed", to)
		}
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s moved from %s to %s\n", p.NameVersion(), from, to)
	return nil
}
