package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/elfscan"
	"github.com/glorpus-work/pkgng/pkg/errors"
)

// NewArchCmd creates the arch command.
func NewArchCmd() *cobra.Command {
	var detect bool

	cmd := &cobra.Command{
		Use:   "arch [--detect]",
		Short: "Print the ABI string",
		Long: `Print the ABI string remote catalogs must match. It comes from the
configuration or, when unset or with --detect, from the ELF notes of the
reference binary (abi_reference, /bin/sh by default).`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			abi := cfg.Settings.ABI
			if detect || abi == "" {
				detected, err := elfscan.DetectABI(cfg.Settings.ABIReference)
				if err != nil {
					return errors.Wrap(err, "unable to determine ABI")
				}
				abi = detected.String()
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), abi)
			return nil
		},
	}

	cmd.Flags().BoolVar(&detect, "detect", false, "Ignore the configured ABI and detect it")

	return cmd
}
