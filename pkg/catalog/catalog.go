// Package catalog stores packages keyed by origin in a SQLite file. The same
// store backs the installed-package database and each repository mirror.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/glorpus-work/pkgng/internal/logger"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
	"github.com/glorpus-work/pkgng/pkg/version"
)

// Mode selects how a catalog file is opened.
type Mode int

const (
	// ModeReadOnly opens an existing catalog for queries.
	ModeReadOnly Mode = iota
	// ModeReadWrite opens an existing catalog for updates.
	ModeReadWrite
	// ModeCreate opens a catalog for updates, creating the file and schema as needed.
	ModeCreate
)

const busyTimeoutMillis = 5000

// Catalog is an open catalog file.
type Catalog struct {
	db   *sql.DB
	path string
	mode Mode
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the catalog at path. A missing file is a not-found error unless
// mode is ModeCreate; a file the caller may not write is a permission error
// for the writable modes; a file that is not a catalog is an integrity error.
func Open(ctx context.Context, path string, mode Mode) (*Catalog, error) {
	switch mode {
	case ModeReadOnly, ModeReadWrite:
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NotFound("open catalog", path, err)
			}
			return nil, errors.IO("open catalog", path, err)
		}
		if mode == ModeReadWrite && !fsutil.Writable(path) {
			return nil, errors.Permission("open catalog", path, os.ErrPermission)
		}
	case ModeCreate:
		if !fsutil.Writable(path) {
			return nil, errors.Permission("create catalog", path, os.ErrPermission)
		}
		if err := fsutil.EnsureFileDir(path); err != nil {
			return nil, errors.IO("create catalog", path, err)
		}
	default:
		return nil, fmt.Errorf("unknown catalog mode %d", mode)
	}

	db, err := sql.Open("sqlite", dsn(path, mode))
	if err != nil {
		return nil, errors.IO("open catalog", path, err)
	}
	c := &Catalog{db: db, path: path, mode: mode}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, errors.Integrity("open catalog", path, err)
	}
	if mode != ModeReadOnly {
		if err := c.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	logger.DebugfWithFields(logger.Fields{"path": path, "mode": mode}, "catalog opened")
	return c, nil
}

var dsnEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func dsn(path string, mode Mode) string {
	m := "rwc"
	switch mode {
	case ModeReadOnly:
		m = "ro"
	case ModeReadWrite:
		m = "rw"
	}
	return fmt.Sprintf("file:%s?mode=%s&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		dsnEscaper.Replace(path), m, busyTimeoutMillis)
}

func (c *Catalog) migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return errors.Integrity("create schema", c.path, err)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO repodata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		MetaSchemaVersion, version.SchemaVersion)
	if err != nil {
		return errors.IO("create schema", c.path, err)
	}
	return nil
}

// Path returns the catalog file path.
func (c *Catalog) Path() string {
	return c.path
}

// Close closes the catalog.
func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return errors.IO("close catalog", c.path, err)
	}
	return nil
}

// Update runs fn in a single transaction, committing when fn returns nil
// and rolling back otherwise.
func (c *Catalog) Update(ctx context.Context, fn func(*Tx) error) (err error) {
	if c.mode == ModeReadOnly {
		return errors.Permission("update catalog", c.path, fmt.Errorf("catalog opened read-only"))
	}
	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.IO("begin transaction", c.path, err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return errors.IO("commit transaction", c.path, err)
	}
	return nil
}

// HasTable reports whether the catalog has a table called name.
func (c *Catalog) HasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, errors.IO("query catalog", c.path, err)
	}
	return n > 0, nil
}

// Meta returns a metadata value. A missing key or metadata table is a not-found error.
func (c *Catalog) Meta(ctx context.Context, key string) (string, error) {
	ok, err := c.HasTable(ctx, metaTable)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.NotFound("catalog metadata", key, nil)
	}
	var value string
	err = c.db.QueryRowContext(ctx, `SELECT value FROM repodata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.NotFound("catalog metadata", key, nil)
	}
	if err != nil {
		return "", errors.IO("query catalog", c.path, err)
	}
	return value, nil
}

// SetMeta stores a metadata value in its own transaction.
func (c *Catalog) SetMeta(ctx context.Context, key, value string) error {
	return c.Update(ctx, func(tx *Tx) error {
		return tx.SetMeta(key, value)
	})
}
