package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"path"
	"strings"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// Field is a package attribute Search can match against.
type Field int

// Searchable fields.
const (
	FieldOrigin Field = iota
	FieldName
	FieldNameVersion
	FieldComment
	FieldDescription
)

func (f Field) column() (string, error) {
	switch f {
	case FieldOrigin:
		return "origin", nil
	case FieldName:
		return "name", nil
	case FieldNameVersion:
		return "name || '-' || version", nil
	case FieldComment:
		return "comment", nil
	case FieldDescription:
		return "description", nil
	default:
		return "", fmt.Errorf("unknown search field %d", f)
	}
}

// OwnedFile is an installed file path together with the package owning it.
type OwnedFile struct {
	Path  string
	Owner *model.Package
}

// Get returns the package with the given origin including all of its lists.
func (c *Catalog) Get(ctx context.Context, origin string) (*model.Package, error) {
	return getPackage(ctx, c.db, c.path, origin)
}

// Has reports whether a package with the given origin exists.
func (c *Catalog) Has(ctx context.Context, origin string) (bool, error) {
	return hasPackage(ctx, c.db, c.path, origin)
}

// Count returns the number of packages.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM packages`).Scan(&n); err != nil {
		return 0, errors.IO("query catalog", c.path, err)
	}
	return n, nil
}

// Records iterates over origin and digest of every package in origin order.
func (c *Catalog) Records(ctx context.Context) iter.Seq2[model.CatalogRecord, error] {
	return func(yield func(model.CatalogRecord, error) bool) {
		rows, err := c.db.QueryContext(ctx, `SELECT origin, digest FROM packages ORDER BY origin`)
		if err != nil {
			yield(model.CatalogRecord{}, errors.IO("query catalog", c.path, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec model.CatalogRecord
			if err := rows.Scan(&rec.Origin, &rec.Digest); err != nil {
				yield(model.CatalogRecord{}, errors.IO("query catalog", c.path, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.CatalogRecord{}, errors.IO("query catalog", c.path, err))
		}
	}
}

// Packages iterates over every package, fully loaded, in origin order.
func (c *Catalog) Packages(ctx context.Context) iter.Seq2[*model.Package, error] {
	return func(yield func(*model.Package, error) bool) {
		bases, err := queryPackages(ctx, c.db, c.path, `SELECT `+packageColumns+` FROM packages ORDER BY origin`)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, b := range bases {
			if err := loadDetails(ctx, c.db, b); err != nil {
				yield(nil, err)
				return
			}
			if !yield(b.pkg, nil) {
				return
			}
		}
	}
}

// Search returns the packages whose field contains pattern, ignoring ASCII
// case, in origin order. Only the scalar attributes are loaded.
func (c *Catalog) Search(ctx context.Context, field Field, pattern string) ([]*model.Package, error) {
	col, err := field.column()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + packageColumns + ` FROM packages WHERE ` + col + ` LIKE ? ESCAPE '\' ORDER BY origin`
	bases, err := queryPackages(ctx, c.db, c.path, query, "%"+escapeLike(pattern)+"%")
	if err != nil {
		return nil, err
	}
	return unwrap(bases), nil
}

// FindByName returns the packages called name, in origin order. Only the
// scalar attributes are loaded.
func (c *Catalog) FindByName(ctx context.Context, name string) ([]*model.Package, error) {
	bases, err := queryPackages(ctx, c.db, c.path,
		`SELECT `+packageColumns+` FROM packages WHERE name = ? ORDER BY origin`, name)
	if err != nil {
		return nil, err
	}
	return unwrap(bases), nil
}

// WhichProvidesShlib returns the packages recording soname as a provided
// shared library.
func (c *Catalog) WhichProvidesShlib(ctx context.Context, soname string) ([]*model.Package, error) {
	bases, err := queryPackages(ctx, c.db, c.path,
		`SELECT `+prefixed("p")+` FROM packages p
		JOIN shlibs_provided s ON s.package_id = p.id
		WHERE s.name = ? ORDER BY p.origin`, soname)
	if err != nil {
		return nil, err
	}
	return unwrap(bases), nil
}

// WhichOwnsFile returns the package that installed path.
func (c *Catalog) WhichOwnsFile(ctx context.Context, filePath string) (*model.Package, error) {
	bases, err := queryPackages(ctx, c.db, c.path,
		`SELECT `+prefixed("p")+` FROM packages p
		JOIN files f ON f.package_id = p.id
		WHERE f.path = ?`, filePath)
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 {
		return nil, errors.NotFound("file owner", filePath, nil)
	}
	return bases[0].pkg, nil
}

// FilesByBaseName returns every installed file whose last path element is name.
func (c *Catalog) FilesByBaseName(ctx context.Context, name string) ([]OwnedFile, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT f.path, `+prefixed("p")+` FROM files f
		JOIN packages p ON p.id = f.package_id
		WHERE f.path = ? OR f.path LIKE ? ESCAPE '\'
		ORDER BY f.path`, name, "%/"+escapeLike(name))
	if err != nil {
		return nil, errors.IO("query catalog", c.path, err)
	}
	defer rows.Close()

	var out []OwnedFile
	for rows.Next() {
		var filePath string
		b, err := scanPackage(rows, &filePath)
		if err != nil {
			return nil, errors.IO("query catalog", c.path, err)
		}
		// LIKE folds case, the base name must match exactly
		if path.Base(filePath) != name {
			continue
		}
		out = append(out, OwnedFile{Path: filePath, Owner: b.pkg})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IO("query catalog", c.path, err)
	}
	return out, nil
}

// ReverseDeps returns the packages that record a dependency on origin.
func (c *Catalog) ReverseDeps(ctx context.Context, origin string) ([]*model.Package, error) {
	bases, err := queryPackages(ctx, c.db, c.path,
		`SELECT `+prefixed("p")+` FROM packages p
		JOIN deps d ON d.package_id = p.id
		WHERE d.origin = ? ORDER BY p.origin`, origin)
	if err != nil {
		return nil, err
	}
	return unwrap(bases), nil
}

// Archs returns the distinct architecture strings of all packages.
func (c *Catalog) Archs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT arch FROM packages ORDER BY arch`)
	if err != nil {
		return nil, errors.IO("query catalog", c.path, err)
	}
	defer rows.Close()

	var archs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, errors.IO("query catalog", c.path, err)
		}
		archs = append(archs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IO("query catalog", c.path, err)
	}
	return archs, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func prefixed(alias string) string {
	cols := strings.Split(packageColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// row is a package together with its row id.
type row struct {
	id  int64
	pkg *model.Package
}

func unwrap(rows []row) []*model.Package {
	out := make([]*model.Package, len(rows))
	for i, r := range rows {
		out[i] = r.pkg
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

// scanPackage scans packageColumns, preceded by the extra destinations.
func scanPackage(s scanner, extra ...any) (row, error) {
	var (
		r         row
		p         model.Package
		automatic int
		logic     int
	)
	dest := append(extra, &r.id, &p.Origin, &p.Name, &p.Version, &p.Comment, &p.Description,
		&p.Arch, &p.Maintainer, &p.WWW, &p.Prefix, &p.FlatSize, &p.PkgSize, &p.Digest,
		&p.RepoPath, &automatic, &logic)
	if err := s.Scan(dest...); err != nil {
		return row{}, err
	}
	p.Automatic = automatic != 0
	p.LicenseLogic = model.LicenseLogic(logic)
	r.pkg = &p
	return r, nil
}

func queryPackages(ctx context.Context, q querier, dbPath, query string, args ...any) ([]row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.IO("query catalog", dbPath, err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		r, err := scanPackage(rows)
		if err != nil {
			return nil, errors.IO("query catalog", dbPath, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IO("query catalog", dbPath, err)
	}
	return out, nil
}

func getPackage(ctx context.Context, q querier, dbPath, origin string) (*model.Package, error) {
	r, err := scanPackage(q.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE origin = ?`, origin))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("package", origin, nil)
	}
	if err != nil {
		return nil, errors.IO("query catalog", dbPath, err)
	}
	if err := loadDetails(ctx, q, r); err != nil {
		return nil, err
	}
	return r.pkg, nil
}

func hasPackage(ctx context.Context, q querier, dbPath, origin string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM packages WHERE origin = ?`, origin).Scan(&n); err != nil {
		return false, errors.IO("query catalog", dbPath, err)
	}
	return n > 0, nil
}

// loadDetails fills in the per-package lists of r.
func loadDetails(ctx context.Context, q querier, r row) error {
	p := r.pkg
	ioErr := func(err error) error { return errors.IO("load package", p.Origin, err) }

	rows, err := q.QueryContext(ctx, `SELECT origin, name, version FROM deps WHERE package_id = ? ORDER BY rowid`, r.id)
	if err != nil {
		return ioErr(err)
	}
	for rows.Next() {
		var d model.Dependency
		if err := rows.Scan(&d.Origin, &d.Name, &d.Version); err != nil {
			rows.Close()
			return ioErr(err)
		}
		p.Deps = append(p.Deps, d)
	}
	if err := closeRows(rows); err != nil {
		return ioErr(err)
	}

	rows, err = q.QueryContext(ctx, `SELECT path, sha256 FROM files WHERE package_id = ? ORDER BY rowid`, r.id)
	if err != nil {
		return ioErr(err)
	}
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.Path, &f.Checksum); err != nil {
			rows.Close()
			return ioErr(err)
		}
		p.Files = append(p.Files, f)
	}
	if err := closeRows(rows); err != nil {
		return ioErr(err)
	}

	if p.Scripts, err = loadPairs[model.ScriptType](ctx, q, `SELECT type, script FROM scripts WHERE package_id = ?`, r.id); err != nil {
		return ioErr(err)
	}
	if p.Options, err = loadPairs[string](ctx, q, `SELECT name, value FROM options WHERE package_id = ?`, r.id); err != nil {
		return ioErr(err)
	}

	lists := []struct {
		table, column string
		dst           *[]string
	}{
		{"dirs", "path", &p.Dirs},
		{"licenses", "name", &p.Licenses},
		{"shlibs_required", "name", &p.ShlibsRequired},
		{"shlibs_provided", "name", &p.ShlibsProvided},
		{"pkg_users", "name", &p.Users},
		{"pkg_groups", "name", &p.Groups},
	}
	for _, l := range lists {
		values, err := loadStrings(ctx, q, `SELECT `+l.column+` FROM `+l.table+` WHERE package_id = ? ORDER BY rowid`, r.id)
		if err != nil {
			return ioErr(err)
		}
		*l.dst = values
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

func loadStrings(ctx context.Context, q querier, query string, id int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	return out, closeRows(rows)
}

func loadPairs[K ~string](ctx context.Context, q querier, query string, id int64) (map[K]string, error) {
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	var out map[K]string
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		if out == nil {
			out = make(map[K]string)
		}
		out[K(k)] = v
	}
	return out, closeRows(rows)
}
