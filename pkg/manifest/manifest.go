// Package manifest reads and writes package manifests.
//
// A manifest is a YAML document. Dependencies and files are mappings keyed
// by name and path; their order is significant and preserved. The compact
// form used in packagesite blobs is the same document as a single JSON line,
// which the YAML decoder reads unchanged.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the manifest entry inside a package file.
const FileName = "+MANIFEST"

type document struct {
	Name           string            `yaml:"name" json:"name"`
	Origin         string            `yaml:"origin" json:"origin"`
	Version        string            `yaml:"version" json:"version"`
	Comment        string            `yaml:"comment,omitempty" json:"comment,omitempty"`
	Desc           string            `yaml:"desc,omitempty" json:"desc,omitempty"`
	Arch           string            `yaml:"arch" json:"arch"`
	Maintainer     string            `yaml:"maintainer,omitempty" json:"maintainer,omitempty"`
	WWW            string            `yaml:"www,omitempty" json:"www,omitempty"`
	Prefix         string            `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	FlatSize       int64             `yaml:"flatsize" json:"flatsize"`
	PkgSize        int64             `yaml:"pkgsize,omitempty" json:"pkgsize,omitempty"`
	Digest         string            `yaml:"digest,omitempty" json:"digest,omitempty"`
	Path           string            `yaml:"path,omitempty" json:"path,omitempty"`
	LicenseLogic   string            `yaml:"licenselogic,omitempty" json:"licenselogic,omitempty"`
	Licenses       []string          `yaml:"licenses,omitempty" json:"licenses,omitempty"`
	Deps           depList           `yaml:"deps,omitempty" json:"deps,omitempty"`
	Files          fileList          `yaml:"files,omitempty" json:"files,omitempty"`
	Dirs           []string          `yaml:"dirs,omitempty" json:"dirs,omitempty"`
	Scripts        map[string]string `yaml:"scripts,omitempty" json:"scripts,omitempty"`
	Options        map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
	ShlibsRequired []string          `yaml:"shlibs_required,omitempty" json:"shlibs_required,omitempty"`
	ShlibsProvided []string          `yaml:"shlibs_provided,omitempty" json:"shlibs_provided,omitempty"`
	Users          []string          `yaml:"users,omitempty" json:"users,omitempty"`
	Groups         []string          `yaml:"groups,omitempty" json:"groups,omitempty"`
}

type depValue struct {
	Origin  string `yaml:"origin" json:"origin"`
	Version string `yaml:"version" json:"version"`
}

// depList decodes the deps mapping in document order.
type depList []model.Dependency

func (d *depList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: deps must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v depValue
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("dependency %s: %w", node.Content[i].Value, err)
		}
		*d = append(*d, model.Dependency{Name: node.Content[i].Value, Origin: v.Origin, Version: v.Version})
	}
	return nil
}

func (d depList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, dep := range d {
		var value yaml.Node
		if err := value.Encode(depValue{Origin: dep.Origin, Version: dep.Version}); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: dep.Name}, &value)
	}
	return node, nil
}

func (d depList) MarshalJSON() ([]byte, error) {
	return orderedJSON(len(d), func(i int) (string, any) {
		return d[i].Name, depValue{Origin: d[i].Origin, Version: d[i].Version}
	})
}

// fileList decodes the files mapping (path: checksum) in document order.
type fileList []model.File

func (f *fileList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: files must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		sum := node.Content[i+1].Value
		if sum == "-" {
			sum = ""
		}
		*f = append(*f, model.File{Path: node.Content[i].Value, Checksum: sum})
	}
	return nil
}

func (f fileList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, file := range f {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: file.Path},
			&yaml.Node{Kind: yaml.ScalarNode, Value: checksumOrDash(file.Checksum)})
	}
	return node, nil
}

func (f fileList) MarshalJSON() ([]byte, error) {
	return orderedJSON(len(f), func(i int) (string, any) {
		return f[i].Path, checksumOrDash(f[i].Checksum)
	})
}

func checksumOrDash(sum string) string {
	if sum == "" {
		return "-"
	}
	return sum
}

func orderedJSON(n int, entry func(int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := range n {
		key, value := entry(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses one manifest.
func Decode(data []byte) (*model.Package, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Parse("decode manifest", "", err)
	}
	return doc.toPackage()
}

// Read parses one manifest from r.
func Read(r io.Reader) (*model.Package, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.IO("read manifest", "", err)
	}
	return Decode(data)
}

// Encode renders p as a block YAML manifest.
func Encode(p *model.Package) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fromPackage(p)); err != nil {
		return nil, errors.Wrap(err, "failed to encode manifest")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode manifest")
	}
	return buf.Bytes(), nil
}

// EncodeCompact renders p on a single line without a trailing newline.
func EncodeCompact(p *model.Package) ([]byte, error) {
	data, err := json.Marshal(fromPackage(p))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode manifest")
	}
	return data, nil
}

func (d *document) toPackage() (*model.Package, error) {
	logic, err := model.ParseLicenseLogic(d.LicenseLogic)
	if err != nil {
		return nil, errors.Parse("decode manifest", d.Origin, err)
	}

	p := &model.Package{
		Origin:         d.Origin,
		Name:           d.Name,
		Version:        d.Version,
		Comment:        d.Comment,
		Description:    d.Desc,
		Arch:           d.Arch,
		Maintainer:     d.Maintainer,
		WWW:            d.WWW,
		Prefix:         d.Prefix,
		FlatSize:       d.FlatSize,
		PkgSize:        d.PkgSize,
		Digest:         d.Digest,
		RepoPath:       d.Path,
		LicenseLogic:   logic,
		Licenses:       d.Licenses,
		Deps:           d.Deps,
		Files:          d.Files,
		Dirs:           d.Dirs,
		Options:        d.Options,
		ShlibsRequired: d.ShlibsRequired,
		ShlibsProvided: d.ShlibsProvided,
		Users:          d.Users,
		Groups:         d.Groups,
	}
	if len(d.Scripts) > 0 {
		p.Scripts = make(map[model.ScriptType]string, len(d.Scripts))
		for k, v := range d.Scripts {
			p.Scripts[model.ScriptType(k)] = v
		}
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Parse("decode manifest", d.Origin, err)
	}
	return p, nil
}

func fromPackage(p *model.Package) *document {
	d := &document{
		Name:           p.Name,
		Origin:         p.Origin,
		Version:        p.Version,
		Comment:        p.Comment,
		Desc:           p.Description,
		Arch:           p.Arch,
		Maintainer:     p.Maintainer,
		WWW:            p.WWW,
		Prefix:         p.Prefix,
		FlatSize:       p.FlatSize,
		PkgSize:        p.PkgSize,
		Digest:         p.Digest,
		Path:           p.RepoPath,
		Licenses:       p.Licenses,
		Deps:           p.Deps,
		Files:          p.Files,
		Dirs:           p.Dirs,
		Options:        p.Options,
		ShlibsRequired: p.ShlibsRequired,
		ShlibsProvided: p.ShlibsProvided,
		Users:          p.Users,
		Groups:         p.Groups,
	}
	if p.LicenseLogic != 0 {
		d.LicenseLogic = p.LicenseLogic.String()
	}
	if len(p.Scripts) > 0 {
		d.Scripts = make(map[string]string, len(p.Scripts))
		for k, v := range p.Scripts {
			d.Scripts[string(k)] = v
		}
	}
	return d
}

// Digest returns the content hash of p's canonical manifest. Fields that
// depend on where the package is stored (digest, path, pkgsize) are left out.
func Digest(p *model.Package) (string, error) {
	canonical := *p
	canonical.Digest, canonical.RepoPath, canonical.PkgSize = "", "", 0
	canonical.Automatic = false
	data, err := EncodeCompact(&canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
