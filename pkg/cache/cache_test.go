package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgng/pkg/cache"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"All/curl-8.5.0.txz": "12345",
		"zsh-5.9.txz":        "123",
	})

	info, err := cache.NewManager(dir).Info()
	require.NoError(t, err)
	assert.Equal(t, dir, info.Directory)
	assert.Equal(t, 2, info.Files)
	assert.Equal(t, int64(8), info.Size)
}

func TestMissingCacheIsEmpty(t *testing.T) {
	mgr := cache.NewManager(filepath.Join(t.TempDir(), "nonexistent"))
	entries, err := mgr.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	info, err := mgr.Info()
	require.NoError(t, err)
	assert.Zero(t, info.Files)
}

func TestStale(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"All/curl-8.5.0.txz": "old",
		"All/curl-8.6.0.txz": "new",
		"All/.fetch-123":     "partial",
		"zsh-5.9.txz":        "zsh",
	})
	keep := map[string]bool{"All/curl-8.6.0.txz": true, "zsh-5.9.txz": true, "All/.fetch-123": true}

	tests := []struct {
		name string
		keep func(string) bool
		want []string
	}{
		{
			name: "outdated and partial",
			keep: func(rel string) bool { return keep[rel] },
			want: []string{"All/.fetch-123", "All/curl-8.5.0.txz"},
		},
		{
			name: "everything",
			want: []string{"All/.fetch-123", "All/curl-8.5.0.txz", "All/curl-8.6.0.txz", "zsh-5.9.txz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale, err := cache.NewManager(dir).Stale(tt.keep)
			require.NoError(t, err)
			var got []string
			for _, e := range stale {
				got = append(got, e.Rel)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"All/curl-8.5.0.txz":      "12345",
		"Latest/pkg.txz":          "12",
		"Latest/keep/pkg-2.0.txz": "1",
	})
	mgr := cache.NewManager(dir)
	stale, err := mgr.Stale(func(rel string) bool { return rel == "Latest/keep/pkg-2.0.txz" })
	require.NoError(t, err)

	res := mgr.Remove(stale)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, int64(7), res.Freed)
	assert.Empty(t, res.Failed)

	assert.NoDirExists(t, filepath.Join(dir, "All"))
	assert.FileExists(t, filepath.Join(dir, "Latest", "keep", "pkg-2.0.txz"))
	assert.DirExists(t, dir)
}
