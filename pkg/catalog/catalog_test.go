package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/version"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "local.sqlite"), ModeCreate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func curl() *model.Package {
	return &model.Package{
		Origin:       "ftp/curl",
		Name:         "curl",
		Version:      "8.5.0",
		Comment:      "Command line tool for transferring data",
		Description:  "curl is a tool to transfer data from or to a server",
		Arch:         "FreeBSD:14:amd64",
		Maintainer:   "sunpoet@FreeBSD.org",
		WWW:          "https://curl.se/",
		Prefix:       "/usr/local",
		FlatSize:     4_200_000,
		PkgSize:      1_300_000,
		Digest:       "d1",
		RepoPath:     "All/curl-8.5.0.pkg",
		LicenseLogic: model.LicenseSingle,
		Licenses:     []string{"MIT"},
		Deps: []model.Dependency{
			{Name: "libnghttp2", Origin: "www/libnghttp2", Version: "1.58.0"},
			{Name: "ca_root_nss", Origin: "security/ca_root_nss", Version: "3.93"},
		},
		Files: []model.File{
			{Path: "/usr/local/bin/curl", Checksum: "abc"},
			{Path: "/usr/local/lib/libcurl.so.4"},
		},
		Dirs:           []string{"/usr/local/share/curl"},
		Scripts:        map[model.ScriptType]string{model.ScriptPostInstall: "x := 1"},
		Options:        map[string]string{"HTTP2": "on", "IDN": "off"},
		ShlibsRequired: []string{"libnghttp2.so.14"},
		ShlibsProvided: []string{"libcurl.so.4"},
		Users:          []string{"curl"},
		Groups:         []string{"curl:*:900:"},
	}
}

func insert(t *testing.T, c *Catalog, pkgs ...*model.Package) {
	t.Helper()
	require.NoError(t, c.Update(context.Background(), func(tx *Tx) error {
		for _, p := range pkgs {
			if err := tx.Insert(p); err != nil {
				return err
			}
		}
		return nil
	}))
}

func simple(origin, digest string, deps ...string) *model.Package {
	p := &model.Package{Origin: origin, Name: filepath.Base(origin), Version: "1.0", Digest: digest, Arch: "FreeBSD:14:amd64"}
	for _, d := range deps {
		p.Deps = append(p.Deps, model.Dependency{Name: filepath.Base(d), Origin: d, Version: "1.0"})
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	want := curl()
	insert(t, c, want)

	got, err := c.Get(ctx, "ftp/curl")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ok, err := c.Has(ctx, "ftp/curl")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Get(ctx, "ftp/wget")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRecordsOrdered(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	insert(t, c, simple("e", "d5"), simple("a", "d1"), simple("c", "d3"))

	var got []model.CatalogRecord
	for rec, err := range c.Records(ctx) {
		require.NoError(t, err)
		got = append(got, rec)
	}
	assert.Equal(t, []model.CatalogRecord{
		{Origin: "a", Digest: "d1"},
		{Origin: "c", Digest: "d3"},
		{Origin: "e", Digest: "d5"},
	}, got)

	var origins []string
	for p, err := range c.Packages(ctx) {
		require.NoError(t, err)
		origins = append(origins, p.Origin)
	}
	assert.Equal(t, []string{"a", "c", "e"}, origins)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateRollsBack(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	insert(t, c, simple("a", "d1"))

	err := c.Update(ctx, func(tx *Tx) error {
		require.NoError(t, tx.Insert(simple("b", "d2")))
		return tx.Insert(simple("a", "other"))
	})
	assert.ErrorIs(t, err, errors.ErrIntegrity)

	ok, err := c.Has(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok, "failed transaction must leave no trace")
}

func TestReplaceDeleteCascade(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	insert(t, c, curl())

	upgraded := curl()
	upgraded.Version = "8.6.0"
	upgraded.Digest = "d1new"
	upgraded.Deps = upgraded.Deps[:1]
	require.NoError(t, c.Update(ctx, func(tx *Tx) error { return tx.Replace(upgraded) }))

	got, err := c.Get(ctx, "ftp/curl")
	require.NoError(t, err)
	assert.Equal(t, "8.6.0", got.Version)
	assert.Len(t, got.Deps, 1)

	require.NoError(t, c.Update(ctx, func(tx *Tx) error { return tx.Delete("ftp/curl") }))
	_, err = c.WhichOwnsFile(ctx, "/usr/local/bin/curl")
	assert.ErrorIs(t, err, errors.ErrNotFound, "files go with the package")

	err = c.Update(ctx, func(tx *Tx) error { return tx.Delete("ftp/curl") })
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestFileConflict(t *testing.T) {
	c := newCatalog(t)
	insert(t, c, curl())

	other := simple("ftp/curl-lite", "x")
	other.Files = []model.File{{Path: "/usr/local/bin/curl"}}
	err := c.Update(context.Background(), func(tx *Tx) error { return tx.Insert(other) })
	assert.ErrorIs(t, err, errors.ErrIntegrity)
	assert.Contains(t, err.Error(), "ftp/curl")
}

func TestTakeFiles(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	insert(t, c, curl())

	other := simple("ftp/curl-lite", "x")
	other.Files = []model.File{{Path: "/usr/local/bin/curl"}, {Path: "/usr/local/bin/curl-lite"}}
	require.NoError(t, c.Update(ctx, func(tx *Tx) error {
		taken, err := tx.TakeFiles(other)
		if err != nil {
			return err
		}
		assert.Equal(t, map[string]string{"/usr/local/bin/curl": "ftp/curl"}, taken)
		return tx.Insert(other)
	}))

	owner, err := c.WhichOwnsFile(ctx, "/usr/local/bin/curl")
	require.NoError(t, err)
	assert.Equal(t, "ftp/curl-lite", owner.Origin)
	prev, err := c.Get(ctx, "ftp/curl")
	require.NoError(t, err)
	assert.Equal(t, []model.File{{Path: "/usr/local/lib/libcurl.so.4"}}, prev.Files)

	// A rolled back takeover leaves ownership alone.
	third := simple("ftp/curl-tiny", "y")
	third.Files = []model.File{{Path: "/usr/local/bin/curl"}}
	err = c.Update(ctx, func(tx *Tx) error {
		if _, err := tx.TakeFiles(third); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	owner, err = c.WhichOwnsFile(ctx, "/usr/local/bin/curl")
	require.NoError(t, err)
	assert.Equal(t, "ftp/curl-lite", owner.Origin)
}

func TestSetAutomaticAndChangeOrigin(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	insert(t, c, simple("devel/libfoo", "d1"), simple("misc/app", "d2", "devel/libfoo"))

	require.NoError(t, c.Update(ctx, func(tx *Tx) error {
		if err := tx.SetAutomatic("devel/libfoo", true); err != nil {
			return err
		}
		return tx.ChangeOrigin("devel/libfoo", "devel/libfoo2")
	}))

	lib, err := c.Get(ctx, "devel/libfoo2")
	require.NoError(t, err)
	assert.True(t, lib.Automatic)

	app, err := c.Get(ctx, "misc/app")
	require.NoError(t, err)
	assert.Equal(t, "devel/libfoo2", app.Deps[0].Origin)

	rdeps, err := c.ReverseDeps(ctx, "devel/libfoo2")
	require.NoError(t, err)
	require.Len(t, rdeps, 1)
	assert.Equal(t, "misc/app", rdeps[0].Origin)

	err = c.Update(ctx, func(tx *Tx) error { return tx.ChangeOrigin("misc/app", "devel/libfoo2") })
	assert.ErrorIs(t, err, errors.ErrIntegrity)
	err = c.Update(ctx, func(tx *Tx) error { return tx.SetAutomatic("nope", true) })
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	other := simple("devel/foo", "x")
	other.Arch = "FreeBSD:14:i386"
	other.Comment = "100% curl free"
	other.Files = []model.File{{Path: "/usr/local/lib/compat/libcurl.so.4"}}
	insert(t, c, curl(), other)

	found, err := c.Search(ctx, FieldComment, "TRANSFERRING")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ftp/curl", found[0].Origin)

	found, err = c.Search(ctx, FieldComment, "100%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "devel/foo", found[0].Origin)

	found, err = c.Search(ctx, FieldNameVersion, "curl-8")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	byName, err := c.FindByName(ctx, "curl")
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	providers, err := c.WhichProvidesShlib(ctx, "libcurl.so.4")
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "ftp/curl", providers[0].Origin)

	owner, err := c.WhichOwnsFile(ctx, "/usr/local/bin/curl")
	require.NoError(t, err)
	assert.Equal(t, "ftp/curl", owner.Origin)

	files, err := c.FilesByBaseName(ctx, "libcurl.so.4")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/usr/local/lib/compat/libcurl.so.4", files[0].Path)
	assert.Equal(t, "devel/foo", files[0].Owner.Origin)
	assert.Equal(t, "ftp/curl", files[1].Owner.Origin)

	archs, err := c.Archs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FreeBSD:14:amd64", "FreeBSD:14:i386"}, archs)
}

func TestMeta(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)

	v, err := c.Meta(ctx, MetaSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, version.SchemaVersion, v)

	_, err = c.Meta(ctx, MetaPackageSite)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, c.SetMeta(ctx, MetaPackageSite, "https://a"))
	require.NoError(t, c.SetMeta(ctx, MetaPackageSite, "https://b"))
	v, err = c.Meta(ctx, MetaPackageSite)
	require.NoError(t, err)
	assert.Equal(t, "https://b", v)

	ok, err := c.HasTable(ctx, "repodata")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenModes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "repo.sqlite")

	_, err := Open(ctx, path, ModeReadOnly)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	c, err := Open(ctx, path, ModeCreate)
	require.NoError(t, err)
	insert(t, c, simple("a", "d1"))
	require.NoError(t, c.Close())

	ro, err := Open(ctx, path, ModeReadOnly)
	require.NoError(t, err)
	defer ro.Close()
	ok, err := ro.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	err = ro.Update(ctx, func(*Tx) error { return nil })
	assert.ErrorIs(t, err, errors.ErrPermission)

	garbage := filepath.Join(dir, "garbage.sqlite")
	require.NoError(t, os.WriteFile(garbage, []byte("this is certainly not a database file, it is far too chatty"), 0o644))
	_, err = Open(ctx, garbage, ModeReadOnly)
	assert.ErrorIs(t, err, errors.ErrIntegrity)
}

func TestOpenReadWriteUnwritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("the superuser can write any file")
	}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.sqlite")
	c, err := Open(ctx, path, ModeCreate)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, os.Chmod(path, 0o444))

	_, err = Open(ctx, path, ModeReadWrite)
	assert.ErrorIs(t, err, errors.ErrPermission)
}
