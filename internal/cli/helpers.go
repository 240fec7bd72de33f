package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/auth"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/elfscan"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fetch"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/glorpus-work/pkgng/pkg/hooks"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	NoColor    *bool
	Options    *[]string
)

// loadConfig loads the configuration file and applies the -o overrides.
func loadConfig() (*config.Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if Options != nil {
		for _, opt := range *Options {
			key, value, ok := strings.Cut(opt, "=")
			if !ok {
				return nil, usageError(fmt.Errorf("invalid option %q, expected KEY=VALUE", opt))
			}
			if err := cfg.SetValue(key, value); err != nil {
				return nil, usageError(err)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.InitLogger(level, logger.FormatText)
	if (NoColor != nil && *NoColor) || !isTerminal(os.Stdout) {
		pterm.DisableColor()
	}
	return cfg, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ensureABI fills in the ABI from the reference binary when the
// configuration does not set one.
func ensureABI(cfg *config.Config) error {
	if cfg.Settings.ABI != "" {
		return nil
	}
	abi, err := elfscan.DetectABI(cfg.Settings.ABIReference)
	if err != nil {
		return errors.Wrap(err, "unable to determine ABI")
	}
	cfg.Settings.ABI = abi.String()
	logger.Debugf("detected ABI %s", cfg.Settings.ABI)
	return nil
}

// newFetcher returns a client carrying the credentials of every repository
// with an auth section.
func newFetcher(cfg *config.Config) fetch.Fetcher {
	c := fetch.NewClient(cfg.Settings.HTTPTimeout, cfg.Settings.UserAgent)
	for _, repo := range cfg.Repositories {
		if repo.Auth == nil {
			continue
		}
		a, err := auth.FromConfig(repo.Auth)
		if err != nil {
			logger.Warn("ignoring repository credentials", logger.Fields{"repo": repo.Name, "error": err.Error()})
			continue
		}
		logger.Debugf("using %v for %s", a, repo.URL)
		c.AddAuth(repo.URL, a)
	}
	return c
}

// openLocal opens the installed-package catalog. The writable modes create
// it on first use.
func openLocal(ctx context.Context, cfg *config.Config, writable bool) (*catalog.Catalog, error) {
	path := cfg.LocalCatalogPath()
	if !writable {
		return catalog.Open(ctx, path, catalog.ModeReadOnly)
	}
	if err := fsutil.EnsureDir(cfg.Settings.DBDir); err != nil {
		return nil, errors.IO("create directory", cfg.Settings.DBDir, err)
	}
	if fsutil.Exists(path) && !fsutil.Writable(path) {
		return nil, errors.Permission("open catalog", path, fmt.Errorf("insufficient privileges"))
	}
	return catalog.Open(ctx, path, catalog.ModeCreate)
}

// resolveOrigin maps a package name to its origin. Arguments containing a
// slash are taken as origins.
func resolveOrigin(ctx context.Context, c *catalog.Catalog, arg string) (string, error) {
	if strings.Contains(arg, "/") {
		return arg, nil
	}
	pkgs, err := c.FindByName(ctx, arg)
	if err != nil {
		return "", err
	}
	switch len(pkgs) {
	case 0:
		return "", errors.NotFound("find package", arg, fmt.Errorf("not installed"))
	case 1:
		return pkgs[0].Origin, nil
	default:
		origins := make([]string, len(pkgs))
		for i, p := range pkgs {
			origins[i] = p.Origin
		}
		return "", usageError(fmt.Errorf("%s is ambiguous, use one of: %s", arg, strings.Join(origins, ", ")))
	}
}

// confirm asks the operator unless yes or assume_yes is set.
func confirm(cfg *config.Config, yes bool, question string) (bool, error) {
	if yes || cfg.Settings.AssumeYes {
		return true, nil
	}
	return pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(question)
}

// noScripts disables package scripts (add -I).
type noScripts struct{}

func (noScripts) Run(context.Context, hooks.Phase, *model.Package, bool) error {
	return nil
}

func warnf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintln(cmd.ErrOrStderr(), pterm.Warning.Sprintf(format, args...))
}
