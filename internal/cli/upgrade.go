package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/jobs"
	"github.com/glorpus-work/pkgng/pkg/repository"
)

// NewUpgradeCmd creates the upgrade command.
func NewUpgradeCmd() *cobra.Command {
	var flags applyFlags

	cmd := &cobra.Command{
		Use:   "upgrade [-fnqy]",
		Short: "Upgrade installed packages",
		Long: `Upgrade every installed package a configured repository offers
a newer version of. With -f every package is reinstalled.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpgrade(cmd, flags)
		},
	}

	flags.register(cmd)

	return cmd
}

func runUpgrade(cmd *cobra.Command, flags applyFlags) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureABI(cfg); err != nil {
		return err
	}
	if cfg.Settings.AutoUpdate {
		if _, err := repository.NewEngine(cfg, newFetcher(cfg), cfg.Settings.ABI).UpdateAll(ctx, false); err != nil {
			warnf(cmd, "repository update failed: %v", err)
		}
	}

	local, err := openLocal(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer local.Close()

	mirrors, closeMirrors := openRepositories(ctx, cfg)
	defer closeMirrors()
	if len(mirrors) == 0 {
		return errors.NotFound("upgrade", "", errors.New("no synced repositories, run update first"))
	}

	set, err := jobs.PlanUpgrades(ctx, local, jobRepositories(mirrors), flags.force)
	if err != nil {
		return err
	}
	return applyJobs(ctx, cmd, cfg, local, set, flags, "Proceed with upgrading packages?")
}

type mirror struct {
	name    string
	url     string
	catalog *catalog.Catalog
}

// openRepositories opens the mirror catalogs of the enabled repositories.
// Repositories that were never synced are skipped.
func openRepositories(ctx context.Context, cfg *config.Config) ([]mirror, func()) {
	var mirrors []mirror
	for _, rc := range cfg.EnabledRepositories() {
		c, err := catalog.Open(ctx, cfg.CatalogPath(rc.Name), catalog.ModeReadOnly)
		if err != nil {
			logger.Warn("repository catalog unavailable", logger.Fields{"repo": rc.Name, "error": err.Error()})
			continue
		}
		mirrors = append(mirrors, mirror{name: rc.Name, url: rc.URL, catalog: c})
	}
	return mirrors, func() {
		for _, m := range mirrors {
			_ = m.catalog.Close()
		}
	}
}

func jobRepositories(mirrors []mirror) []jobs.Repository {
	repos := make([]jobs.Repository, len(mirrors))
	for i, m := range mirrors {
		repos[i] = jobs.Repository{Name: m.name, URL: m.url, Catalog: m.catalog}
	}
	return repos
}
