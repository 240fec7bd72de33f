package catalog

// Metadata keys kept in the repodata table.
const (
	MetaPackageSite   = "packagesite"
	MetaLastModified  = "last_modified"
	MetaSchemaVersion = "schema_version"
)

const metaTable = "repodata"

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY,
	origin TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	arch TEXT NOT NULL DEFAULT '',
	maintainer TEXT NOT NULL DEFAULT '',
	www TEXT NOT NULL DEFAULT '',
	prefix TEXT NOT NULL DEFAULT '',
	flatsize INTEGER NOT NULL DEFAULT 0,
	pkgsize INTEGER NOT NULL DEFAULT 0,
	digest TEXT NOT NULL DEFAULT '',
	repopath TEXT NOT NULL DEFAULT '',
	automatic INTEGER NOT NULL DEFAULT 0,
	licenselogic INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS packages_name ON packages(name);
CREATE TABLE IF NOT EXISTS deps (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	origin TEXT NOT NULL,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	UNIQUE(package_id, origin)
);
CREATE INDEX IF NOT EXISTS deps_origin ON deps(origin);
CREATE TABLE IF NOT EXISTS files (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	path TEXT NOT NULL UNIQUE,
	sha256 TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS files_package ON files(package_id);
CREATE TABLE IF NOT EXISTS dirs (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	UNIQUE(package_id, path)
);
CREATE TABLE IF NOT EXISTS scripts (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	script TEXT NOT NULL,
	UNIQUE(package_id, type)
);
CREATE TABLE IF NOT EXISTS options (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	UNIQUE(package_id, name)
);
CREATE TABLE IF NOT EXISTS licenses (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(package_id, name)
);
CREATE TABLE IF NOT EXISTS shlibs_required (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(package_id, name)
);
CREATE TABLE IF NOT EXISTS shlibs_provided (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(package_id, name)
);
CREATE INDEX IF NOT EXISTS shlibs_provided_name ON shlibs_provided(name);
CREATE TABLE IF NOT EXISTS pkg_users (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(package_id, name)
);
CREATE TABLE IF NOT EXISTS pkg_groups (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(package_id, name)
);
CREATE TABLE IF NOT EXISTS repodata (
	key TEXT NOT NULL UNIQUE,
	value TEXT NOT NULL
);
`

const packageColumns = `id, origin, name, version, comment, description, arch, maintainer, www,
	prefix, flatsize, pkgsize, digest, repopath, automatic, licenselogic`
