package main

import (
	"fmt"

	"github.com/banksean/clrm/registry"
)

// CommandListCmd prints every known command, built-in and discovered
// from --extra-command-path, one line per command (or one paragraph per
// command in verbose mode).
type CommandListCmd struct {
	Verbose          bool     `help:"print more information"`
	ExtraCommandPath []string `env:"CLRM_EXTRA_COMMAND_PATH" sep:":" help:"extends the default lookup path for commands"`
}

func (c *CommandListCmd) Run(cctx *Context) error {
	reg, err := scanCommandPath(c.ExtraCommandPath)
	if err != nil {
		return err
	}
	fmt.Print(reg.ListCommands(c.Verbose))
	return nil
}

// scanCommandPath is the command-discovery logic shared by command-list
// and dump-command: built-ins first, then each --extra-command-path
// directory in order, remote ssh:// entries fetched into a scratch
// directory before being scanned.
func scanCommandPath(paths []string) (registry.Registry, error) {
	builder, err := registry.NewBuilder()
	if err != nil {
		return registry.Registry{}, err
	}
	for _, p := range paths {
		dir, err := resolveCommandPathEntry(p)
		if err != nil {
			return registry.Registry{}, err
		}
		if err := builder.ScanDirectory(dir); err != nil {
			return registry.Registry{}, err
		}
	}
	return builder.Build(), nil
}
