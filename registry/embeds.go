package registry

import "embed"

// builtinFS holds the commands every registry starts with, scanned first
// so that any later, caller-provided command path can override them.
//
//go:embed builtin/*.toml
var builtinFS embed.FS

const builtinDir = "builtin"
