package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/repository"
	"github.com/glorpus-work/pkgng/pkg/signature"
)

// NewRepoCmd creates the repo command.
func NewRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo <repo-dir> [private-key]",
		Short: "Create a package repository",
		Long: `Scan repo-dir for package files and write the repo, digests and
packagesite archives next to them. When a private key (RSA PEM or armored
OpenPGP) is given the catalogs are signed.`,
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			return runRepo(cmd, args[0], key)
		},
	}

	return cmd
}

func runRepo(cmd *cobra.Command, dir, key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var signer signature.Signer
	if key != "" {
		if signer, err = signature.LoadSigner(key); err != nil {
			return err
		}
	}

	res, err := repository.NewBuilder(cfg.Settings.RepoExt, signer).Build(cmd.Context(), dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range res.Skipped {
		warnf(cmd, "skipped %s", s)
	}
	_, _ = fmt.Fprintf(out, "Packing files for repository: done (%d packages)\n", res.Packages)
	return nil
}
