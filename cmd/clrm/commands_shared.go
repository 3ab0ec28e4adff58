package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/banksean/clrm/remotecmd"
)

// resolveCommandPathEntry turns one --extra-command-path entry into a
// local directory: a plain path is returned unchanged, an "ssh://"
// reference is fetched into a scratch directory under os.TempDir first.
func resolveCommandPathEntry(p string) (string, error) {
	if !remotecmd.IsReference(p) {
		return p, nil
	}
	scratch := filepath.Join(os.TempDir(), "clrm-remote-commands")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return "", fmt.Errorf("creating remote command scratch directory: %w", err)
	}
	dir, err := remotecmd.Fetch(p, scratch, "")
	if err != nil {
		return "", fmt.Errorf("fetching remote command path %q: %w", p, err)
	}
	return dir, nil
}
