package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/pkgng/pkg/model"
	"github.com/glorpus-work/pkgng/pkg/pkgfile"
)

// NewPackage returns a minimal package for the test ABI.
func NewPackage(origin, version string, deps ...*model.Package) *model.Package {
	name := origin[strings.LastIndex(origin, "/")+1:]
	p := &model.Package{
		Origin:  origin,
		Name:    name,
		Version: version,
		Arch:    TestABI,
		Prefix:  "/usr/local",
		Comment: name + " for tests",
	}
	for _, d := range deps {
		p.AddDep(d.AsDependency())
	}
	return p
}

// BuildPackage writes p as name-version.txz into dir. files maps install
// paths to contents and are added to p's file list.
func BuildPackage(t *testing.T, dir string, p *model.Package, files map[string]string) string {
	t.Helper()
	stage := t.TempDir()
	for path, content := range files {
		target := filepath.Join(stage, filepath.FromSlash(strings.TrimPrefix(path, "/")))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("Failed to stage %s: %v", path, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to stage %s: %v", path, err)
		}
		p.Files = append(p.Files, model.File{Path: path})
		p.FlatSize += int64(len(content))
	}
	out := filepath.Join(dir, p.NameVersion()+".txz")
	if err := pkgfile.Create(context.Background(), out, "txz", p, stage); err != nil {
		t.Fatalf("Failed to build package %s: %v", p.NameVersion(), err)
	}
	return out
}
