// Package model holds the package, catalog and job types shared by the pkgng core.
package model

import (
	"fmt"
	"slices"
	"strings"
)

// Dependency is a dependency edge recorded by value.
type Dependency struct {
	Name    string `json:"name"`
	Origin  string `json:"origin"`
	Version string `json:"version"`
}

// File is an installed file with its optional checksum.
type File struct {
	Path     string `json:"path"`
	Checksum string `json:"sum,omitempty"`
}

// ScriptType is the lifecycle event a package script runs at.
type ScriptType string

// Lifecycle events.
const (
	ScriptPreInstall    ScriptType = "pre-install"
	ScriptInstall       ScriptType = "install"
	ScriptPostInstall   ScriptType = "post-install"
	ScriptPreDeinstall  ScriptType = "pre-deinstall"
	ScriptDeinstall     ScriptType = "deinstall"
	ScriptPostDeinstall ScriptType = "post-deinstall"
)

// ScriptTypes lists every lifecycle event in execution order.
var ScriptTypes = []ScriptType{
	ScriptPreInstall, ScriptInstall, ScriptPostInstall,
	ScriptPreDeinstall, ScriptDeinstall, ScriptPostDeinstall,
}

// LicenseLogic tells how multiple licenses combine.
type LicenseLogic int

// License combinations.
const (
	LicenseSingle LicenseLogic = iota + 1
	LicenseAnd
	LicenseOr
)

func (l LicenseLogic) String() string {
	switch l {
	case LicenseAnd:
		return "and"
	case LicenseOr:
		return "or"
	default:
		return "single"
	}
}

// ParseLicenseLogic accepts single, and, or (and the "dual"/"multi" aliases).
func ParseLicenseLogic(s string) (LicenseLogic, error) {
	switch strings.ToLower(s) {
	case "", "single":
		return LicenseSingle, nil
	case "and", "multi":
		return LicenseAnd, nil
	case "or", "dual":
		return LicenseOr, nil
	default:
		return 0, fmt.Errorf("unknown license logic %q", s)
	}
}

// Package is one package as known to a catalog or read from a package file.
// Origin is its identity.
type Package struct {
	Origin       string       `json:"origin"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Comment      string       `json:"comment,omitempty"`
	Description  string       `json:"desc,omitempty"`
	Arch         string       `json:"arch"`
	Maintainer   string       `json:"maintainer,omitempty"`
	WWW          string       `json:"www,omitempty"`
	Prefix       string       `json:"prefix,omitempty"`
	FlatSize     int64        `json:"flatsize"`
	PkgSize      int64        `json:"pkgsize,omitempty"`
	Digest       string       `json:"digest,omitempty"`
	RepoPath     string       `json:"path,omitempty"`
	Automatic    bool         `json:"automatic"`
	LicenseLogic LicenseLogic `json:"licenselogic"`
	Licenses     []string     `json:"licenses,omitempty"`

	Deps           []Dependency          `json:"deps,omitempty"`
	Files          []File                `json:"files,omitempty"`
	Dirs           []string              `json:"dirs,omitempty"`
	Scripts        map[ScriptType]string `json:"scripts,omitempty"`
	Options        map[string]string     `json:"options,omitempty"`
	ShlibsRequired []string              `json:"shlibs_required,omitempty"`
	ShlibsProvided []string              `json:"shlibs_provided,omitempty"`
	Users          []string              `json:"users,omitempty"`
	Groups         []string              `json:"groups,omitempty"`

	// Location is the path or URL the package file was opened from. It is not persisted.
	Location string `json:"-"`
}

// NameVersion returns name-version, the usual display and file name stem.
func (p *Package) NameVersion() string {
	return p.Name + "-" + p.Version
}

func (p *Package) String() string {
	return p.NameVersion()
}

// HasDep reports whether origin is already a recorded dependency.
func (p *Package) HasDep(origin string) bool {
	return slices.ContainsFunc(p.Deps, func(d Dependency) bool { return d.Origin == origin })
}

// AddDep appends a dependency unless its origin is already recorded.
func (p *Package) AddDep(dep Dependency) bool {
	if p.HasDep(dep.Origin) {
		return false
	}
	p.Deps = append(p.Deps, dep)
	return true
}

// AddShlibRequired records a needed library name once.
func (p *Package) AddShlibRequired(name string) bool {
	if slices.Contains(p.ShlibsRequired, name) {
		return false
	}
	p.ShlibsRequired = append(p.ShlibsRequired, name)
	return true
}

// AddShlibProvided records a provided soname once.
func (p *Package) AddShlibProvided(name string) bool {
	if slices.Contains(p.ShlibsProvided, name) {
		return false
	}
	p.ShlibsProvided = append(p.ShlibsProvided, name)
	return true
}

// AsDependency returns the edge other packages record when depending on p.
func (p *Package) AsDependency() Dependency {
	return Dependency{Name: p.Name, Origin: p.Origin, Version: p.Version}
}

// Validate checks the fields every catalog row needs.
func (p *Package) Validate() error {
	switch {
	case p.Origin == "":
		return fmt.Errorf("package has no origin")
	case p.Name == "":
		return fmt.Errorf("package %s has no name", p.Origin)
	case p.Version == "":
		return fmt.Errorf("package %s has no version", p.Origin)
	}
	return nil
}

// CatalogRecord is one entry of a remote digest list.
type CatalogRecord struct {
	Origin string
	Digest string
	// Offset is the byte offset of the manifest inside the packagesite blob.
	Offset int64
}
