package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// nameRE validates a command name: lower-case, digits, underscore and
// hyphen, must start with a letter.
var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateName reports whether name is a legal command name.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid command name %q: must match %s", name, nameRE.String())
	}
	return nil
}

// Input describes one argument a command accepts. The Basic form is just
// a name; the Full form adds help text and an optional default, and may
// be marked Optional so the script compiler does not fail when it is
// omitted by the caller.
type Input struct {
	Name     string
	Help     string
	Default  string
	Optional bool
}

// Command is one named, TOML-defined shell fragment: its help text, its
// input parameters, whether it may be the target of an alias, and the
// shell script body itself.
type Command struct {
	Name     string
	Help     string
	CanAlias bool
	Inputs   []Input
	Script   string

	// DefinedIn records every source path this command was defined or
	// redefined at, oldest first, so overwrite chains can be reported
	// (invariant I-Overwrite-Chain). DefinedIn[len-1] is the winning
	// definition currently in effect.
	DefinedIn []string
}

func (c Command) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", c.Name, c.Help)
	for _, in := range c.Inputs {
		opt := ""
		if in.Optional {
			opt = " (optional)"
		}
		fmt.Fprintf(&b, "  %s%s: %s\n", in.Name, opt, in.Help)
	}
	return b.String()
}

// DumpSource renders the command the way `clrm dump-command` prints it:
// the raw script body, unwrapped.
func (c Command) DumpSource() string {
	return c.Script
}

// alias builds the Command a registry's alias() helper would synthesize
// for a "derived command whose script is the aliased name followed by
// ${@}". Nothing in this module calls it, and it is not exposed as a
// CLI verb.
func alias(name, from string, help string) Command {
	return Command{
		Name:   name,
		Help:   help,
		Script: fmt.Sprintf("%s \"${@}\"", from),
	}
}

// tomlCommand is the on-disk shape a Command TOML file is decoded into.
type tomlCommand struct {
	Help     string       `toml:"help"`
	CanAlias bool         `toml:"can_alias"`
	Inputs   []tomlInput  `toml:"inputs"`
	Script   string       `toml:"script"`
}

type tomlInput struct {
	Name     string `toml:"name"`
	Help     string `toml:"help"`
	Default  string `toml:"default"`
	Optional bool   `toml:"optional"`
}

func (t tomlCommand) toCommand(name, path string) Command {
	inputs := make([]Input, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		inputs = append(inputs, Input{Name: in.Name, Help: in.Help, Default: in.Default, Optional: in.Optional})
	}
	return Command{
		Name:      name,
		Help:      t.Help,
		CanAlias:  t.CanAlias,
		Inputs:    inputs,
		Script:    t.Script,
		DefinedIn: []string{path},
	}
}
