//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgng/internal/cli"
	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/test/testutil"
)

// testEnv is a served repository directory plus a configuration pointing at it.
type testEnv struct {
	cfg     *config.Config
	cfgPath string
	repoDir string
	server  *testutil.TestServer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repoDir := t.TempDir()
	srv := testutil.NewTestServer(t, repoDir)
	cfg, cfgPath := testutil.SetupTestConfig(t, srv.URL)
	return &testEnv{cfg: cfg, cfgPath: cfgPath, repoDir: repoDir, server: srv}
}

// publish builds the package into the repository directory and returns its URL.
func (e *testEnv) publish(t *testing.T, p *model.Package, files map[string]string) string {
	t.Helper()
	path := testutil.BuildPackage(t, e.repoDir, p, files)
	return e.server.URL + "/" + filepath.Base(path)
}

// unpublish removes every package file named name-*.txz from the repository.
func (e *testEnv) unpublish(t *testing.T, name string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.repoDir, name+"-*.txz"))
	require.NoError(t, err)
	for _, m := range matches {
		require.NoError(t, os.Remove(m))
	}
}

// run executes a command line against the environment's configuration.
// Root flags such as -o go in pre, before --config.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWith(t, nil, args...)
}

func (e *testEnv) runWith(t *testing.T, pre []string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	full := append(append([]string{}, pre...), "--no-color", "--config", e.cfgPath)
	cmd.SetArgs(append(full, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// buildRepo indexes the repository directory through the repo command.
func (e *testEnv) buildRepo(t *testing.T) {
	t.Helper()
	out, err := e.run(t, "repo", e.repoDir)
	require.NoError(t, err, out)
	require.Contains(t, out, "Packing files for repository: done")
}

// installed returns the local catalog's packages keyed by origin.
func (e *testEnv) installed(t *testing.T) map[string]*model.Package {
	t.Helper()
	ctx := context.Background()
	path := e.cfg.LocalCatalogPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]*model.Package{}
	}
	c, err := catalog.Open(ctx, path, catalog.ModeReadOnly)
	require.NoError(t, err)
	defer c.Close()

	pkgs := map[string]*model.Package{}
	for p, err := range c.Packages(ctx) {
		require.NoError(t, err)
		pkgs[p.Origin] = p
	}
	return pkgs
}

// rootFile returns the path of an installed file below the configured root.
func (e *testEnv) rootFile(path string) string {
	return filepath.Join(e.cfg.Settings.RootDir, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

func requireExit(t *testing.T, code int, err error) {
	t.Helper()
	require.Equal(t, code, cli.ExitCode(err), "error: %v", err)
}
