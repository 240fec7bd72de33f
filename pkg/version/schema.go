package version

import (
	goversion "github.com/hashicorp/go-version"
)

// SchemaVersion is the catalog layout written by this release.
const SchemaVersion = "1.2.0"

// SupportedSchemas is the range of catalog layouts that can be read and
// reconciled in place. Catalogs outside it are replaced by a full fetch.
const SupportedSchemas = ">= 1.0, < 2.0"

var supported = goversion.MustConstraints(goversion.NewConstraint(SupportedSchemas))

// SchemaCompatible reports whether a catalog written with schema v can be used as is.
func SchemaCompatible(v string) bool {
	parsed, err := goversion.NewVersion(v)
	if err != nil {
		return false
	}
	return supported.Check(parsed)
}
