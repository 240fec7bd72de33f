package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/config"
)

// TestABI is the ABI string used by test configurations and packages.
const TestABI = "freebsd:14:x86:64"

// TestServer serves a repository directory over HTTP.
type TestServer struct {
	Server *httptest.Server
	URL    string

	mu       sync.Mutex
	requests []string
}

// NewTestServer starts a server for dir that is shut down when the test ends.
func NewTestServer(t *testing.T, dir string) *TestServer {
	t.Helper()
	ts := &TestServer{}
	files := http.FileServer(http.Dir(dir))
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.URL.Path)
		ts.mu.Unlock()
		files.ServeHTTP(w, r)
	}))
	ts.URL = ts.Server.URL
	t.Cleanup(ts.Server.Close)
	return ts
}

// Requests returns the paths requested so far and forgets them.
func (ts *TestServer) Requests() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := ts.requests
	ts.requests = nil
	return out
}

// SetupTestConfig returns a configuration rooted in a temporary directory
// with one repository named "test" at repoURL, and the path it was saved to.
func SetupTestConfig(t *testing.T, repoURL string) (*config.Config, string) {
	t.Helper()
	tempDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Settings.DBDir = filepath.Join(tempDir, "db")
	cfg.Settings.CacheDir = filepath.Join(tempDir, "cache")
	cfg.Settings.RootDir = filepath.Join(tempDir, "root")
	cfg.Settings.ABI = TestABI
	cfg.Settings.AssumeYes = true
	cfg.Repositories = []*config.RepositoryConfig{
		{Name: "test", URL: repoURL, Enabled: true},
	}
	for _, dir := range []string{cfg.Settings.DBDir, cfg.Settings.CacheDir, cfg.Settings.RootDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	configPath := filepath.Join(tempDir, "pkg.yaml")
	if err := cfg.SaveConfig(configPath); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	logger.Debugf("Test config written to: %s", configPath)
	return cfg, configPath
}
