package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/pkgng/pkg/catalog"
	"github.com/glorpus-work/pkgng/pkg/config"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fetch"
	mock_fetch "github.com/glorpus-work/pkgng/pkg/fetch/mocks"
	"github.com/glorpus-work/pkgng/pkg/hooks"
	mock_hooks "github.com/glorpus-work/pkgng/pkg/hooks/mocks"
	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/usergroup"
	mock_usergroup "github.com/glorpus-work/pkgng/pkg/usergroup/mocks"
	"github.com/glorpus-work/pkgng/test/testutil"
)

type fixture struct {
	cfg     *config.Config
	store   *catalog.Catalog
	pkgDir  string
	scripts *mock_hooks.MockRunner
	fetcher *mock_fetch.MockFetcher
	events  []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	cfg, _ := testutil.SetupTestConfig(t, "")
	store, err := catalog.Open(context.Background(), cfg.LocalCatalogPath(), catalog.ModeCreate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		cfg:     cfg,
		store:   store,
		pkgDir:  t.TempDir(),
		scripts: mock_hooks.NewMockRunner(ctrl),
		fetcher: mock_fetch.NewMockFetcher(ctrl),
	}
}

func (f *fixture) applier(opts ...Option) *Applier {
	opts = append([]Option{
		WithScripts(f.scripts),
		WithHooks(Hooks{OnEvent: func(e Event) { f.events = append(f.events, e) }}),
	}, opts...)
	return NewApplier(f.cfg, f.store, f.fetcher, opts...)
}

// build writes p into the package directory and points its Location at the file.
func (f *fixture) build(t *testing.T, p *model.Package, files map[string]string) *model.Package {
	t.Helper()
	p.Location = testutil.BuildPackage(t, f.pkgDir, p, files)
	return p
}

func (f *fixture) rootFile(rel string) string {
	return filepath.Join(f.cfg.Settings.RootDir, filepath.FromSlash(rel))
}

func (f *fixture) allowScripts() {
	f.scripts.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func jobSet(jobs ...*model.Job) *model.JobSet {
	set := model.NewJobSet()
	for _, j := range jobs {
		set.Add(j)
	}
	return set
}

func TestApplyInstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.build(t, testutil.NewPackage("devel/libb", "1.0"), map[string]string{"/usr/local/lib/libb.so.1": "libb"})
	a := f.build(t, testutil.NewPackage("www/a", "2.3", b), map[string]string{"/usr/local/bin/a": "#!/bin/sh\n"})

	gomock.InOrder(
		f.scripts.EXPECT().Run(gomock.Any(), hooks.PreInstall, gomock.Any(), false).Return(nil),
		f.scripts.EXPECT().Run(gomock.Any(), hooks.PostInstall, gomock.Any(), false).Return(nil),
		f.scripts.EXPECT().Run(gomock.Any(), hooks.PreInstall, gomock.Any(), false).Return(nil),
		f.scripts.EXPECT().Run(gomock.Any(), hooks.PostInstall, gomock.Any(), false).Return(nil),
	)

	res, err := f.applier().Apply(ctx, jobSet(
		&model.Job{Type: model.JobInstall, Package: b, Automatic: true},
		&model.Job{Type: model.JobInstall, Package: a},
	), false)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Applied, 2)
	assert.Equal(t, StatusOK, res.Status())
	assert.Equal(t, 0, res.ExitCode())
	assert.NoError(t, res.Err())

	data, err := os.ReadFile(f.rootFile("usr/local/bin/a"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))
	assert.FileExists(t, f.rootFile("usr/local/lib/libb.so.1"))

	got, err := f.store.Get(ctx, "www/a")
	require.NoError(t, err)
	assert.Equal(t, "2.3", got.Version)
	assert.Equal(t, a.Digest, got.Digest)
	assert.False(t, got.Automatic)
	assert.True(t, got.HasDep("devel/libb"))

	dep, err := f.store.Get(ctx, "devel/libb")
	require.NoError(t, err)
	assert.True(t, dep.Automatic)

	var phases []string
	for _, e := range f.events {
		phases = append(phases, e.Phase)
	}
	assert.Equal(t, []string{"installing", "installing", "done"}, phases)
}

func TestApplyEmpty(t *testing.T) {
	f := newFixture(t)
	res, err := f.applier().Apply(context.Background(), model.NewJobSet(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusNothingToDo, res.Status())
	assert.Equal(t, 1, res.ExitCode())
}

func TestApplyFailureSkipsDependents(t *testing.T) {
	tests := []struct {
		name        string
		force       bool
		wantApplied []string
		wantFailed  []string
	}{
		{name: "dependents skipped", wantApplied: []string{"misc/c"}, wantFailed: []string{"devel/libb", "www/a"}},
		{name: "force applies dependents", force: true, wantApplied: []string{"www/a", "misc/c"}, wantFailed: []string{"devel/libb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.allowScripts()

			b := testutil.NewPackage("devel/libb", "1.0")
			b.Location = filepath.Join(f.pkgDir, "libb-1.0.txz")
			a := f.build(t, testutil.NewPackage("www/a", "1.0", b), map[string]string{"/usr/local/bin/a": "a"})
			c := f.build(t, testutil.NewPackage("misc/c", "1.0"), map[string]string{"/usr/local/bin/c": "c"})

			res, err := f.applier().Apply(context.Background(), jobSet(
				&model.Job{Type: model.JobInstall, Package: b, Automatic: true},
				&model.Job{Type: model.JobInstall, Package: a},
				&model.Job{Type: model.JobInstall, Package: c},
			), tt.force)
			require.NoError(t, err)

			var applied, failed []string
			for _, j := range res.Applied {
				applied = append(applied, j.Origin())
			}
			for _, fl := range res.Failed {
				failed = append(failed, fl.Job.Origin())
			}
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantFailed, failed)
			assert.Equal(t, StatusPartial, res.Status())
			assert.Equal(t, 3, res.ExitCode())
			assert.ErrorIs(t, res.Err(), errors.ErrNotFound)
			assert.ErrorIs(t, res.Failed[0], errors.ErrNotFound)
			if !tt.force {
				assert.ErrorIs(t, res.Failed[1].Err, errDependencyFailed)
				assert.NoFileExists(t, f.rootFile("usr/local/bin/a"))
			}
		})
	}
}

func TestApplyPreScriptFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{"/usr/local/bin/a": "a"})

	f.scripts.EXPECT().Run(gomock.Any(), hooks.PreInstall, gomock.Any(), false).
		Return(fmt.Errorf("a-1.0 pre-install: %w", errors.ErrHookScript))

	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: a}), false)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Err(), errors.ErrHookScript)
	assert.NoFileExists(t, f.rootFile("usr/local/bin/a"))

	ok, err := f.store.Has(ctx, "www/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyPostScriptFailureKeepsPackage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{"/usr/local/bin/a": "a"})

	f.scripts.EXPECT().Run(gomock.Any(), hooks.PreInstall, gomock.Any(), false).Return(nil)
	f.scripts.EXPECT().Run(gomock.Any(), hooks.PostInstall, gomock.Any(), false).Return(errors.ErrHookScript)

	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: a}), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status())
	ok, err := f.store.Has(ctx, "www/a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApplyUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.scripts.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), false).Return(nil).Times(2)
	v1 := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{
		"/usr/local/bin/a":       "one",
		"/usr/local/share/a/old": "old",
	})
	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: v1, Automatic: true}), false)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	f.scripts.EXPECT().Run(gomock.Any(), hooks.PreInstall, gomock.Any(), true).Return(nil)
	f.scripts.EXPECT().Run(gomock.Any(), hooks.PostInstall, gomock.Any(), true).Return(nil)
	v2 := f.build(t, testutil.NewPackage("www/a", "1.1"), map[string]string{
		"/usr/local/bin/a":       "two",
		"/usr/local/share/a/new": "new",
	})
	res, err = f.applier().Apply(ctx, jobSet(&model.Job{
		Type: model.JobUpgrade, Package: v2, OldVersion: "1.0", OldFlatSize: v1.FlatSize, Automatic: true,
	}), false)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	data, err := os.ReadFile(f.rootFile("usr/local/bin/a"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.NoFileExists(t, f.rootFile("usr/local/share/a/old"))
	assert.FileExists(t, f.rootFile("usr/local/share/a/new"))

	got, err := f.store.Get(ctx, "www/a")
	require.NoError(t, err)
	assert.Equal(t, "1.1", got.Version)
	assert.True(t, got.Automatic)
}

func TestApplyRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.scripts.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), false).Return(nil).Times(2)

	a := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{"/usr/local/bin/a": "a"})
	_, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: a}), false)
	require.NoError(t, err)
	require.FileExists(t, f.rootFile("usr/local/bin/a"))

	installed, err := f.store.Get(ctx, "www/a")
	require.NoError(t, err)

	gomock.InOrder(
		f.scripts.EXPECT().Run(gomock.Any(), hooks.PreDeinstall, gomock.Any(), false).Return(nil),
		f.scripts.EXPECT().Run(gomock.Any(), hooks.PostDeinstall, gomock.Any(), false).Return(nil),
	)
	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobRemove, Package: installed}), false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status())
	assert.NoFileExists(t, f.rootFile("usr/local/bin/a"))

	ok, err := f.store.Has(ctx, "www/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyRemoveBlockedByFailedDependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lib := testutil.NewPackage("devel/lib", "1.0")
	app := testutil.NewPackage("www/app", "1.0", lib)
	require.NoError(t, f.store.Update(ctx, func(tx *catalog.Tx) error {
		if err := tx.Insert(lib); err != nil {
			return err
		}
		return tx.Insert(app)
	}))

	f.scripts.EXPECT().Run(gomock.Any(), hooks.PreDeinstall, gomock.Any(), false).Return(errors.ErrHookScript)

	res, err := f.applier().Apply(ctx, jobSet(
		&model.Job{Type: model.JobRemove, Package: app},
		&model.Job{Type: model.JobRemove, Package: lib},
	), false)
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[1].Err, errDependencyFailed)

	ok, err := f.store.Has(ctx, "devel/lib")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApplyFetchesRemotePackage(t *testing.T) {
	f := newFixture(t)
	f.allowScripts()
	ctx := context.Background()

	local := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{"/usr/local/bin/a": "a"})
	remote := *local
	remote.Files = nil
	remote.RepoPath = "All/a-1.0.txz"
	remote.Location = "https://pkg.example.org/All/a-1.0.txz"

	f.fetcher.EXPECT().Fetch(gomock.Any(), remote.Location, gomock.Any(), time.Time{}).
		DoAndReturn(func(_ context.Context, _ string, w io.Writer, _ time.Time) (fetch.Result, error) {
			src, err := os.Open(local.Location)
			if err != nil {
				return fetch.Result{}, err
			}
			defer src.Close()
			n, err := io.Copy(w, src)
			return fetch.Result{Size: n}, err
		})

	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: &remote}), false)
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	assert.FileExists(t, filepath.Join(f.cfg.Settings.CacheDir, "All", "a-1.0.txz"))
	assert.FileExists(t, f.rootFile("usr/local/bin/a"))

	got, err := f.store.Get(ctx, "www/a")
	require.NoError(t, err)
	assert.Equal(t, "All/a-1.0.txz", got.RepoPath)
	assert.Equal(t, "fetching", f.events[0].Phase)
}

func TestApplyFetchFailureSkipsDependents(t *testing.T) {
	f := newFixture(t)
	f.allowScripts()
	ctx := context.Background()

	lib := testutil.NewPackage("devel/lib", "1.0")
	lib.RepoPath = "All/lib-1.0.txz"
	lib.Location = "https://pkg.example.org/All/lib-1.0.txz"
	app := f.build(t, testutil.NewPackage("www/app", "1.0", lib), nil)

	f.fetcher.EXPECT().Fetch(gomock.Any(), lib.Location, gomock.Any(), time.Time{}).
		Return(fetch.Result{}, errors.NotFound("fetch", lib.Location, fmt.Errorf("HTTP 404")))

	res, err := f.applier(WithFetchConcurrency(1)).Apply(ctx, jobSet(
		&model.Job{Type: model.JobInstall, Package: lib},
		&model.Job{Type: model.JobInstall, Package: app},
	), false)
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrNotFound)
	assert.ErrorIs(t, res.Failed[1].Err, errDependencyFailed)
	assert.Equal(t, StatusPartial, res.Status())
	assert.NoFileExists(t, filepath.Join(f.cfg.Settings.CacheDir, "All", "lib-1.0.txz"))
}

func TestApplyFileConflict(t *testing.T) {
	f := newFixture(t)
	f.allowScripts()
	ctx := context.Background()

	a := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{"/usr/local/bin/tool": "a"})
	b := f.build(t, testutil.NewPackage("www/b", "1.0"), map[string]string{"/usr/local/bin/tool": "b"})

	res, err := f.applier().Apply(ctx, jobSet(
		&model.Job{Type: model.JobInstall, Package: a},
		&model.Job{Type: model.JobInstall, Package: b},
	), false)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "www/b", res.Failed[0].Job.Origin())
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrIntegrity)

	data, err := os.ReadFile(f.rootFile("usr/local/bin/tool"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
	_, err = f.store.Get(ctx, "www/b")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// Forced, b takes the file over in the catalog and on disk.
	res, err = f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: b}), true)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	data, err = os.ReadFile(f.rootFile("usr/local/bin/tool"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	owner, err := f.store.WhichOwnsFile(ctx, "/usr/local/bin/tool")
	require.NoError(t, err)
	assert.Equal(t, "www/b", owner.Origin)
	prev, err := f.store.Get(ctx, "www/a")
	require.NoError(t, err)
	assert.Empty(t, prev.Files)
}

func TestApplyRejectedInsertLeavesRootUntouched(t *testing.T) {
	f := newFixture(t)
	f.allowScripts()
	ctx := context.Background()

	a := f.build(t, testutil.NewPackage("www/a", "1.0"), map[string]string{"/usr/local/bin/a": "a"})
	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: a}), false)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	// A second copy of the same origin under a new name fails its insert.
	again := testutil.NewPackage("www/a", "1.0")
	again.Name = "a-copy"
	f.build(t, again, map[string]string{"/usr/local/bin/a-copy": "copy"})
	res, err = f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: again}), true)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrIntegrity)
	assert.NoFileExists(t, f.rootFile("usr/local/bin/a-copy"))
}

func TestApplyAnalysesExtractedFiles(t *testing.T) {
	f := newFixture(t)
	f.allowScripts()
	f.cfg.Settings.AddMissingDeps = true
	f.cfg.Settings.RegisterShlibs = true
	ctx := context.Background()

	lib := f.build(t, testutil.NewPackage("devel/libb", "1.0"), map[string]string{
		"/usr/local/lib/libb.so.1": string(testutil.BuildELF(testutil.ELFSpec{Soname: "libb.so.1"})),
	})
	app := f.build(t, testutil.NewPackage("www/app", "2.0"), map[string]string{
		"/usr/local/bin/app": string(testutil.BuildELF(testutil.ELFSpec{Needed: []string{"libb.so.1"}})),
	})

	res, err := f.applier().Apply(ctx, jobSet(
		&model.Job{Type: model.JobInstall, Package: lib},
		&model.Job{Type: model.JobInstall, Package: app},
	), false)
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	got, err := f.store.Get(ctx, "devel/libb")
	require.NoError(t, err)
	assert.Equal(t, []string{"libb.so.1"}, got.ShlibsProvided)
	got, err = f.store.Get(ctx, "www/app")
	require.NoError(t, err)
	assert.True(t, got.HasDep("devel/libb"))
	assert.Equal(t, []string{"libb.so.1"}, got.ShlibsRequired)
}

func TestApplyWrongArch(t *testing.T) {
	f := newFixture(t)
	p := testutil.NewPackage("www/a", "1.0")
	p.Arch = "freebsd:13:aarch64:64"
	f.build(t, p, map[string]string{"/usr/local/bin/a": "a"})

	res, err := f.applier().Apply(context.Background(), jobSet(&model.Job{Type: model.JobInstall, Package: p}), false)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, errors.ErrIntegrity)
	assert.ErrorContains(t, res.Err(), "wrong architecture")
}

func TestApplyProvisionsUsers(t *testing.T) {
	f := newFixture(t)
	f.allowScripts()
	users := mock_usergroup.NewMockProvisioner(gomock.NewController(t))

	p := testutil.NewPackage("www/nginx", "1.24.0")
	p.Groups = []string{"www:*:80:"}
	f.build(t, p, map[string]string{"/usr/local/sbin/nginx": "nginx"})

	users.EXPECT().EnsureGroup(gomock.Any(), usergroup.Group{Name: "www", GID: 80, Full: true}).Return(nil)

	res, err := f.applier(WithProvisioner(users)).Apply(context.Background(), jobSet(&model.Job{Type: model.JobInstall, Package: p}), false)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
}

func TestApplyCancelled(t *testing.T) {
	f := newFixture(t)
	a := f.build(t, testutil.NewPackage("www/a", "1.0"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.applier().Apply(ctx, jobSet(&model.Job{Type: model.JobInstall, Package: a}), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Applied)
}
