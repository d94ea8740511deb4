// Package dictdata embeds the default RADIUS attribute dictionary so
// a binary can start up without any filesystem dependency.
package dictdata

import "embed"

//go:embed default.dictionary
var FS embed.FS

// DefaultPath is the path to pass to radius.LoadDictionaryFS(FS, ...).
const DefaultPath = "default.dictionary"
