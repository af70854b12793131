package appfs

import "embed"

// FS holds the resources the application reads at startup: catalog, email templates, migrations,
// JSON schemas and the common passwords list.
//
//go:embed catalog migrations schema assets templates
var FS embed.FS
