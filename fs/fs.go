package appfs

import "embed"

// FS holds the files shipped within the binaries.
//go:embed assets migrations
var FS embed.FS
