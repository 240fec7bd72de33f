package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/model"
)

// Tx is a catalog transaction handed to Catalog.Update.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Get returns the package with the given origin as seen by the transaction.
func (t *Tx) Get(origin string) (*model.Package, error) {
	return getPackage(t.ctx, t.tx, "", origin)
}

// Has reports whether origin exists as seen by the transaction.
func (t *Tx) Has(origin string) (bool, error) {
	return hasPackage(t.ctx, t.tx, "", origin)
}

// Insert adds p. An origin already present or a file owned by another
// package is an integrity error.
func (t *Tx) Insert(p *model.Package) error {
	if err := p.Validate(); err != nil {
		return errors.Parse("insert", p.Origin, err)
	}
	exists, err := t.Has(p.Origin)
	if err != nil {
		return err
	}
	if exists {
		return errors.Integrity("insert", p.Origin, fmt.Errorf("origin already present"))
	}
	if err := t.checkFileConflicts(p); err != nil {
		return err
	}

	automatic := 0
	if p.Automatic {
		automatic = 1
	}
	logic := p.LicenseLogic
	if logic == 0 {
		logic = model.LicenseSingle
	}
	res, err := t.tx.ExecContext(t.ctx, `INSERT INTO packages
		(origin, name, version, comment, description, arch, maintainer, www, prefix,
		 flatsize, pkgsize, digest, repopath, automatic, licenselogic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Origin, p.Name, p.Version, p.Comment, p.Description, p.Arch, p.Maintainer, p.WWW, p.Prefix,
		p.FlatSize, p.PkgSize, p.Digest, p.RepoPath, automatic, int(logic))
	if err != nil {
		return errors.IO("insert", p.Origin, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.IO("insert", p.Origin, err)
	}
	if err := t.insertDetails(id, p); err != nil {
		return errors.IO("insert", p.Origin, err)
	}
	return nil
}

func (t *Tx) checkFileConflicts(p *model.Package) error {
	for _, f := range p.Files {
		var owner string
		err := t.tx.QueryRowContext(t.ctx,
			`SELECT p.origin FROM files f JOIN packages p ON p.id = f.package_id WHERE f.path = ?`,
			f.Path).Scan(&owner)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return errors.IO("insert", p.Origin, err)
		}
		return errors.Integrity("insert", p.Origin, fmt.Errorf("%s is already installed by %s", f.Path, owner))
	}
	return nil
}

// TakeFiles hands the files of p that other packages own over to p by
// dropping those packages' file rows. It returns the previous owner of
// each path taken. Call it before Insert or Replace to force a conflict.
func (t *Tx) TakeFiles(p *model.Package) (map[string]string, error) {
	taken := map[string]string{}
	for _, f := range p.Files {
		var owner string
		err := t.tx.QueryRowContext(t.ctx,
			`SELECT p.origin FROM files f JOIN packages p ON p.id = f.package_id WHERE f.path = ?`,
			f.Path).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner == p.Origin) {
			continue
		}
		if err != nil {
			return nil, errors.IO("take files", p.Origin, err)
		}
		if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM files WHERE path = ?`, f.Path); err != nil {
			return nil, errors.IO("take files", p.Origin, err)
		}
		taken[f.Path] = owner
	}
	return taken, nil
}

func (t *Tx) insertDetails(id int64, p *model.Package) error {
	for _, d := range p.Deps {
		if _, err := t.tx.ExecContext(t.ctx,
			`INSERT OR IGNORE INTO deps (package_id, origin, name, version) VALUES (?, ?, ?, ?)`,
			id, d.Origin, d.Name, d.Version); err != nil {
			return err
		}
	}
	for _, f := range p.Files {
		if _, err := t.tx.ExecContext(t.ctx,
			`INSERT INTO files (package_id, path, sha256) VALUES (?, ?, ?)`, id, f.Path, f.Checksum); err != nil {
			return err
		}
	}
	if err := t.insertPairs(`INSERT INTO scripts (package_id, type, script) VALUES (?, ?, ?)`, id, scriptPairs(p.Scripts)); err != nil {
		return err
	}
	if err := t.insertPairs(`INSERT INTO options (package_id, name, value) VALUES (?, ?, ?)`, id, p.Options); err != nil {
		return err
	}

	lists := []struct {
		table, column string
		values        []string
	}{
		{"dirs", "path", p.Dirs},
		{"licenses", "name", p.Licenses},
		{"shlibs_required", "name", p.ShlibsRequired},
		{"shlibs_provided", "name", p.ShlibsProvided},
		{"pkg_users", "name", p.Users},
		{"pkg_groups", "name", p.Groups},
	}
	for _, l := range lists {
		query := `INSERT OR IGNORE INTO ` + l.table + ` (package_id, ` + l.column + `) VALUES (?, ?)`
		for _, v := range l.values {
			if _, err := t.tx.ExecContext(t.ctx, query, id, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func scriptPairs(scripts map[model.ScriptType]string) map[string]string {
	out := make(map[string]string, len(scripts))
	for k, v := range scripts {
		out[string(k)] = v
	}
	return out
}

func (t *Tx) insertPairs(query string, id int64, pairs map[string]string) error {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := t.tx.ExecContext(t.ctx, query, id, k, pairs[k]); err != nil {
			return err
		}
	}
	return nil
}

// Replace stores p, removing any package with the same origin first.
func (t *Tx) Replace(p *model.Package) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM packages WHERE origin = ?`, p.Origin); err != nil {
		return errors.IO("replace", p.Origin, err)
	}
	return t.Insert(p)
}

// Delete removes the package with the given origin along with its lists.
func (t *Tx) Delete(origin string) error {
	return t.expectOne("delete", origin, `DELETE FROM packages WHERE origin = ?`, origin)
}

// SetAutomatic sets the automatic-install flag of origin.
func (t *Tx) SetAutomatic(origin string, automatic bool) error {
	v := 0
	if automatic {
		v = 1
	}
	return t.expectOne("set automatic", origin, `UPDATE packages SET automatic = ? WHERE origin = ?`, v, origin)
}

// ChangeOrigin renames a package and rewrites the dependency edges pointing at it.
func (t *Tx) ChangeOrigin(from, to string) error {
	exists, err := t.Has(to)
	if err != nil {
		return err
	}
	if exists {
		return errors.Integrity("change origin", to, fmt.Errorf("origin already present"))
	}
	if err := t.expectOne("change origin", from, `UPDATE packages SET origin = ? WHERE origin = ?`, to, from); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, `UPDATE deps SET origin = ? WHERE origin = ?`, to, from); err != nil {
		return errors.IO("change origin", from, err)
	}
	return nil
}

// SetMeta stores a metadata value.
func (t *Tx) SetMeta(key, value string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO repodata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return errors.IO("set metadata", key, err)
	}
	return nil
}

func (t *Tx) expectOne(op, origin, query string, args ...any) error {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return errors.IO(op, origin, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.IO(op, origin, err)
	}
	if n == 0 {
		return errors.NotFound(op, origin, nil)
	}
	return nil
}
