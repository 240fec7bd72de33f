package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// NewInfoCmd creates the info command.
func NewInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [origin|name...]",
		Short: "Show installed packages",
		Long: `Without arguments list the installed packages. With arguments show
the details of each package, including what it depends on and what requires it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args)
		},
	}

	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local, err := openLocal(ctx, cfg, false)
	if errors.Is(err, errors.ErrNotFound) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No packages installed.")
		return errors.ErrNothingToDo
	}
	if err != nil {
		return err
	}
	defer local.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
		n := 0
		for p, err := range local.Packages(ctx) {
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", p.NameVersion(), truncate(p.Comment, MaxCommentLength))
			n++
		}
		if n == 0 {
			_, _ = fmt.Fprintln(out, "No packages installed.")
			return errors.ErrNothingToDo
		}
		return tw.Flush()
	}

	for i, arg := range args {
		origin, err := resolveOrigin(ctx, local, arg)
		if err != nil {
			return err
		}
		p, err := local.Get(ctx, origin)
		if err != nil {
			return err
		}
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		if err := printPackage(cmd, local, out, p); err != nil {
			return err
		}
	}
	return nil
}

func printPackage(cmd *cobra.Command, local *catalog.Catalog, out io.Writer, p *model.Package) error {
	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			_, _ = fmt.Fprintf(tw, "%s\t: %s\n", k, v)
		}
	}
	row("Name", p.Name)
	row("Version", p.Version)
	row("Origin", p.Origin)
	row("Architecture", p.Arch)
	row("Prefix", p.Prefix)
	row("Maintainer", p.Maintainer)
	row("WWW", p.WWW)
	row("Comment", p.Comment)
	if len(p.Licenses) > 0 {
		row("Licenses", strings.Join(p.Licenses, " "+p.LicenseLogic.String()+" "))
	}
	row("Flat size", humanize.Bytes(uint64(p.FlatSize)))
	row("Automatic", fmt.Sprint(p.Automatic))
	if len(p.ShlibsRequired) > 0 {
		row("Shared libs required", strings.Join(p.ShlibsRequired, " "))
	}
	if len(p.ShlibsProvided) > 0 {
		row("Shared libs provided", strings.Join(p.ShlibsProvided, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.Deps) > 0 {
		_, _ = fmt.Fprintln(out, "Depends on:")
		for _, d := range p.Deps {
			_, _ = fmt.Fprintf(out, "\t%s-%s (%s)\n", d.Name, d.Version, d.Origin)
		}
	}
	rdeps, err := local.ReverseDeps(cmd.Context(), p.Origin)
	if err != nil {
		return err
	}
	if len(rdeps) > 0 {
		_, _ = fmt.Fprintln(out, "Required by:")
		for _, r := range rdeps {
			_, _ = fmt.Fprintf(out, "\t%s\n", r.NameVersion())
		}
	}
	return nil
}
