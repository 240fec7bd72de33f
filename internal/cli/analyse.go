package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/elfscan"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// NewAnalyseCmd creates the analyse command.
func NewAnalyseCmd() *cobra.Command {
	var missingDeps, registerShlibs bool

	cmd := &cobra.Command{
		Use:     "analyse [-m|-r] [origin|name...]",
		Aliases: []string{"analyze"},
		Short:   "Scan installed binaries for shared library use",
		Long: `Scan the ELF binaries of installed packages. -m records the
packages providing needed libraries as dependencies, -r records the
libraries each package needs and provides. Without arguments every
installed package is analysed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := elfscan.AddMissingDeps
			switch {
			case missingDeps && registerShlibs:
				return usageError(fmt.Errorf("-m and -r are mutually exclusive"))
			case registerShlibs:
				mode = elfscan.RegisterShlibs
			}
			return runAnalyse(cmd, mode, args)
		},
	}

	cmd.Flags().BoolVarP(&missingDeps, "missing-deps", "m", false, "Add missing dependencies (default)")
	cmd.Flags().BoolVarP(&registerShlibs, "register-shlibs", "r", false, "Register required and provided shared libraries")

	return cmd
}

func runAnalyse(cmd *cobra.Command, mode elfscan.Mode, args []string) error {
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

	var pkgs []*model.Package
	if len(args) == 0 {
		for p, err := range local.Packages(ctx) {
			if err != nil {
				return err
			}
			pkgs = append(pkgs, p)
		}
	} else {
		for _, arg := range args {
			origin, err := resolveOrigin(ctx, local, arg)
			if err != nil {
				return err
			}
			p, err := local.Get(ctx, origin)
			if err != nil {
				return err
			}
			pkgs = append(pkgs, p)
		}
	}

	analyser := elfscan.NewAnalyser(local, cfg.Settings.RootDir)
	changed := 0
	for _, p := range pkgs {
		ok, err := analyser.Analyse(ctx, p, mode)
		if err != nil {
			return errors.Wrapf(err, "analyse %s", p.NameVersion())
		}
		if !ok {
			continue
		}
		if err := local.Update(ctx, func(tx *catalog.Tx) error { return tx.Replace(p) }); err != nil {
			return err
		}
		logger.Debugf("%s updated", p.NameVersion())
		changed++
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d packages updated\n", changed, len(pkgs))
	if changed == 0 {
		return errors.ErrNothingToDo
	}
	return nil
}
