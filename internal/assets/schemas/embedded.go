// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so catalog validation works
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// CatalogManifestSchema is the embedded catalog-manifest JSON schema.
//
//go:embed catalog-manifest.schema.json
var CatalogManifestSchema []byte
