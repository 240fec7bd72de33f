package archive

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) map[string]string {
	t.Helper()
	entries := make(map[string]string, len(files))
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		entries[p] = name
	}
	return entries
}

func TestCreateAndExtractAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := map[string]string{
		"+MANIFEST":                 "name: curl\n",
		"usr/local/bin/curl":        "#!/bin/sh\n",
		"usr/local/share/curl/ca":   "certs",
		"usr/local/share/doc/READM": "docs",
	}
	entries := writeFiles(t, filepath.Join(dir, "src"), files)

	for _, ext := range []string{"txz", "tgz", "tar"} {
		t.Run(ext, func(t *testing.T) {
			archivePath := filepath.Join(dir, "curl-7.26.0."+ext)
			require.NoError(t, CreateFile(ctx, archivePath, ext, entries))

			dest := filepath.Join(dir, "root-"+ext)
			written, err := ExtractAll(ctx, archivePath, nil, dest, func(p string) bool { return p != "+MANIFEST" })
			require.NoError(t, err)
			assert.Len(t, written, 3)

			data, err := os.ReadFile(filepath.Join(dest, "usr/local/share/curl/ca"))
			require.NoError(t, err)
			assert.Equal(t, "certs", string(data))
			assert.NoFileExists(t, filepath.Join(dest, "+MANIFEST"))
		})
	}
}

func TestReadEntryFromAnonymousFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	entries := writeFiles(t, filepath.Join(dir, "src"), map[string]string{
		"digests":   "a:d1:0\n",
		"signature": "sig",
	})

	tmp, err := fsutil.AnonymousTemp(dir, "digests-*")
	require.NoError(t, err)
	defer tmp.Close()
	require.NoError(t, Create(ctx, tmp, "txz", entries))

	data, err := ReadEntry(ctx, "digests.txz", tmp, "digests")
	require.NoError(t, err)
	assert.Equal(t, "a:d1:0\n", string(data))

	var buf bytes.Buffer
	n, err := CopyEntry(ctx, "digests.txz", tmp, "signature", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "sig", buf.String())

	_, err = ReadEntry(ctx, "digests.txz", tmp, "missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFormatForExt(t *testing.T) {
	for _, ext := range []string{"txz", ".tgz", "tzst", "tbz", "tar"} {
		_, err := FormatForExt(ext)
		assert.NoError(t, err, ext)
	}
	_, err := FormatForExt("zip")
	assert.Error(t, err)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()
	p, err := safeJoin(root, "usr/local/bin/curl")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "usr/local/bin/curl"), p)

	p, err = safeJoin(root, "../../etc/passwd")
	require.NoError(t, err, "cleaned paths stay below root")
	assert.Equal(t, filepath.Join(root, "etc/passwd"), p)
}
