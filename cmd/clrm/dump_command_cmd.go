package main

import "fmt"

// DumpCommandCmd prints one command's script body to stdout. It prints
// neither the raw TOML file nor the overwrite chain of files that have
// redefined the command.
type DumpCommandCmd struct {
	Name             string   `arg:"" help:"the command to dump"`
	ExtraCommandPath []string `env:"CLRM_EXTRA_COMMAND_PATH" sep:":" help:"extends the default lookup path for commands"`
}

func (c *DumpCommandCmd) Run(cctx *Context) error {
	reg, err := scanCommandPath(c.ExtraCommandPath)
	if err != nil {
		return err
	}
	cmd, err := reg.Command(c.Name)
	if err != nil {
		return err
	}
	fmt.Println(cmd.DumpSource())
	return nil
}
