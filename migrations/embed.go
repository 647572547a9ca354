package migrations

import "embed"

// Files exposes the embedded migrations, one directory per storage backend.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
