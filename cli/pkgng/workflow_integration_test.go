//go:build integration

package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgng/internal/cli"
	"github.com/glorpus-work/pkgng/test/testutil"
)

func TestUpdateAndSearch(t *testing.T) {
	env := newTestEnv(t)
	libfoo := testutil.NewPackage("devel/libfoo", "1.0")
	env.publish(t, libfoo, nil)
	env.publish(t, testutil.NewPackage("www/curl", "8.5.0", libfoo), map[string]string{
		"/usr/local/bin/curl": "curl binary",
	})
	env.buildRepo(t)

	out, err := env.run(t, "update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 repository catalog(s) updated.")
	_, err = os.Stat(env.cfg.CatalogPath("test"))
	require.NoError(t, err)

	out, err = env.run(t, "search", "CURL")
	require.NoError(t, err, out)
	assert.Contains(t, out, "curl-8.5.0")
	assert.Contains(t, out, "www/curl")

	out, err = env.run(t, "search", "-o", "devel/")
	require.NoError(t, err, out)
	assert.Contains(t, out, "libfoo-1.0")
	assert.NotContains(t, out, "curl")

	out, err = env.run(t, "search", "nothing-like-this")
	requireExit(t, cli.ExitNothingToDo, err)
	assert.Contains(t, out, "No packages found matching 'nothing-like-this'")

	_, err = env.run(t, "search", "-o", "-c", "curl")
	requireExit(t, cli.ExitUsage, err)
}

func TestUpdateWithoutRepositories(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Repositories = nil
	require.NoError(t, env.cfg.SaveConfig(env.cfgPath))

	out, err := env.run(t, "update")
	requireExit(t, cli.ExitNothingToDo, err)
	assert.Contains(t, out, "No active remote repositories configured.")
}

func TestAddInstallsDependenciesFromSiblings(t *testing.T) {
	env := newTestEnv(t)
	libfoo := testutil.NewPackage("devel/libfoo", "1.0")
	env.publish(t, libfoo, map[string]string{"/usr/local/lib/libfoo.so.1": "lib"})
	curlURL := env.publish(t, testutil.NewPackage("www/curl", "8.5.0", libfoo), map[string]string{
		"/usr/local/bin/curl": "curl binary",
	})

	out, err := env.run(t, "add", "-y", curlURL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Installing libfoo-1.0")
	assert.Contains(t, out, "Installing curl-8.5.0")

	pkgs := env.installed(t)
	require.Contains(t, pkgs, "www/curl")
	require.Contains(t, pkgs, "devel/libfoo")
	assert.False(t, pkgs["www/curl"].Automatic)
	assert.True(t, pkgs["devel/libfoo"].Automatic)

	content, err := os.ReadFile(env.rootFile("/usr/local/bin/curl"))
	require.NoError(t, err)
	assert.Equal(t, "curl binary", string(content))

	out, err = env.run(t, "info", "curl")
	require.NoError(t, err, out)
	assert.Contains(t, out, "www/curl")
	assert.Contains(t, out, "Depends on:")
	assert.Contains(t, out, "libfoo-1.0 (devel/libfoo)")

	out, err = env.run(t, "info", "libfoo")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Required by:")
	assert.Contains(t, out, "curl-8.5.0")

	out, err = env.run(t, "add", "-y", curlURL)
	requireExit(t, cli.ExitNothingToDo, err)
}

func TestAddDryRunChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	url := env.publish(t, testutil.NewPackage("shells/zsh", "5.9"), map[string]string{"/usr/local/bin/zsh": "zsh"})

	out, err := env.run(t, "add", "-n", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "The following packages will be affected:")
	assert.Contains(t, out, "Installing zsh-5.9")
	assert.Empty(t, env.installed(t))
	assert.NoFileExists(t, env.rootFile("/usr/local/bin/zsh"))
}

func TestAddMissingDependencyIsPartial(t *testing.T) {
	env := newTestEnv(t)
	libfoo := testutil.NewPackage("devel/libfoo", "1.0")
	curlURL := env.publish(t, testutil.NewPackage("www/curl", "8.5.0", libfoo), nil)
	zshURL := env.publish(t, testutil.NewPackage("shells/zsh", "5.9"), nil)

	_, err := env.run(t, "add", "-y", curlURL, zshURL)
	requireExit(t, cli.ExitSoftware, err)
	assert.Empty(t, env.installed(t))

	_, err = env.run(t, "add", "-y", "-f", curlURL, zshURL)
	requireExit(t, cli.ExitPartial, err)

	pkgs := env.installed(t)
	assert.Contains(t, pkgs, "shells/zsh")
	assert.NotContains(t, pkgs, "www/curl")
}

func TestUpgradeFromRepository(t *testing.T) {
	env := newTestEnv(t)
	libfoo := testutil.NewPackage("devel/libfoo", "1.0")
	env.publish(t, libfoo, nil)
	curlURL := env.publish(t, testutil.NewPackage("www/curl", "8.5.0", libfoo), map[string]string{
		"/usr/local/bin/curl":       "old curl",
		"/usr/local/share/curl/old": "stale",
	})
	out, err := env.run(t, "add", "-y", curlURL)
	require.NoError(t, err, out)

	_, err = env.run(t, "upgrade", "-y", "-o", "autoupdate=false")
	require.Error(t, err, "upgrade has no -o flag")
	requireExit(t, cli.ExitUsage, err)

	env.unpublish(t, "curl")
	env.publish(t, testutil.NewPackage("www/curl", "8.6.0", libfoo), map[string]string{
		"/usr/local/bin/curl": "new curl",
	})
	env.buildRepo(t)
	out, err = env.run(t, "update", "-f")
	require.NoError(t, err, out)

	out, err = env.runWith(t, []string{"-o", "autoupdate=false"}, "upgrade", "-n")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Upgrading curl from 8.5.0 to 8.6.0")
	assert.Equal(t, "8.5.0", env.installed(t)["www/curl"].Version)

	out, err = env.runWith(t, []string{"-o", "autoupdate=false"}, "upgrade", "-y")
	require.NoError(t, err, out)

	pkgs := env.installed(t)
	assert.Equal(t, "8.6.0", pkgs["www/curl"].Version)
	content, err := os.ReadFile(env.rootFile("/usr/local/bin/curl"))
	require.NoError(t, err)
	assert.Equal(t, "new curl", string(content))
	assert.NoFileExists(t, env.rootFile("/usr/local/share/curl/old"))

	_, err = env.runWith(t, []string{"-o", "autoupdate=false"}, "upgrade", "-y")
	requireExit(t, cli.ExitNothingToDo, err)
}

func TestSetAndDelete(t *testing.T) {
	env := newTestEnv(t)
	libfoo := testutil.NewPackage("devel/libfoo", "1.0")
	env.publish(t, libfoo, map[string]string{"/usr/local/lib/libfoo.so.1": "lib"})
	curlURL := env.publish(t, testutil.NewPackage("www/curl", "8.5.0", libfoo), map[string]string{
		"/usr/local/bin/curl": "curl",
	})
	out, err := env.run(t, "add", "-y", curlURL)
	require.NoError(t, err, out)

	out, err = env.run(t, "set", "-y", "-A", "0", "libfoo")
	require.NoError(t, err, out)
	assert.Contains(t, out, "devel/libfoo marked as not automatic")
	assert.False(t, env.installed(t)["devel/libfoo"].Automatic)

	out, err = env.run(t, "set", "-y", "-o", "devel/libfoo:devel/libfoo1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "libfoo-1.0 moved from devel/libfoo to devel/libfoo1")
	pkgs := env.installed(t)
	require.Contains(t, pkgs, "devel/libfoo1")
	assert.True(t, pkgs["www/curl"].HasDep("devel/libfoo1"))

	_, err = env.run(t, "set", "-A", "2", "curl")
	requireExit(t, cli.ExitUsage, err)

	_, err = env.run(t, "delete", "-y", "libfoo")
	require.Error(t, err, "curl still depends on libfoo")
	assert.Contains(t, env.installed(t), "devel/libfoo1")

	out, err = env.run(t, "delete", "-y", "-R", "libfoo")
	require.NoError(t, err, out)
	assert.Empty(t, env.installed(t))
	assert.NoFileExists(t, env.rootFile("/usr/local/bin/curl"))
	assert.NoFileExists(t, env.rootFile("/usr/local/lib/libfoo.so.1"))

	out, err = env.run(t, "info")
	requireExit(t, cli.ExitNothingToDo, err)
	assert.Contains(t, out, "No packages installed.")
}

func TestFetchAndClean(t *testing.T) {
	env := newTestEnv(t)
	libfoo := testutil.NewPackage("devel/libfoo", "1.0")
	env.publish(t, libfoo, nil)
	env.publish(t, testutil.NewPackage("www/curl", "8.5.0", libfoo), nil)
	env.buildRepo(t)
	out, err := env.run(t, "update")
	require.NoError(t, err, out)

	out, err = env.run(t, "fetch", "-y", "-d", "curl")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 of 2 packages fetched.")
	assert.FileExists(t, env.cfg.CachePath("curl-8.5.0.txz"))
	assert.FileExists(t, env.cfg.CachePath("libfoo-1.0.txz"))
	assert.Empty(t, env.installed(t), "fetch does not install")

	_, err = env.run(t, "fetch", "-y", "www/curl")
	requireExit(t, cli.ExitNothingToDo, err)

	_, err = env.run(t, "fetch", "-y", "no-such-package")
	requireExit(t, cli.ExitSoftware, err)

	// An outdated file the repository no longer offers.
	require.NoError(t, os.WriteFile(env.cfg.CachePath("curl-8.4.0.txz"), []byte("old"), 0o644))
	out, err = env.run(t, "clean", "-n")
	require.NoError(t, err, out)
	assert.Contains(t, out, "curl-8.4.0.txz")
	assert.NotContains(t, out, "curl-8.5.0.txz")
	assert.FileExists(t, env.cfg.CachePath("curl-8.4.0.txz"))

	out, err = env.run(t, "clean", "-y")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Deleted 1 file(s)")
	assert.NoFileExists(t, env.cfg.CachePath("curl-8.4.0.txz"))
	assert.FileExists(t, env.cfg.CachePath("curl-8.5.0.txz"))

	_, err = env.run(t, "clean", "-y")
	requireExit(t, cli.ExitNothingToDo, err)

	out, err = env.run(t, "clean", "-a", "-y")
	require.NoError(t, err, out)
	assert.NoFileExists(t, env.cfg.CachePath("curl-8.5.0.txz"))
}
