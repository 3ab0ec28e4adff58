package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Registry holds the full set of known commands, keyed by name, along
// with each command's overwrite history.
type Registry struct {
	commands map[string]Command
}

// Builder scans one or more command directories, in order, into a
// Registry. Later directories overwrite commands defined by earlier ones,
// appending to the overwritten command's DefinedIn chain rather than
// discarding history (invariant I-Overwrite-Chain).
type Builder struct {
	reg Registry
}

// NewBuilder returns a Builder pre-loaded with the built-in commands
// embedded into the binary.
func NewBuilder() (*Builder, error) {
	b := &Builder{reg: Registry{commands: map[string]Command{}}}
	if err := b.scanFS(builtinFS, builtinDir); err != nil {
		return nil, fmt.Errorf("failed to load built-in commands: %w", err)
	}
	return b, nil
}

// ScanDirectory loads every *.toml file directly inside dir (not
// recursively) as a command definition, named after its filename without
// extension.
func (b *Builder) ScanDirectory(dir string) error {
	return b.scanFS(os.DirFS(dir), ".")
}

func (b *Builder) scanFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, fname := range names {
		path := fname
		if root != "." {
			path = filepath.Join(root, fname)
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		name := strings.TrimSuffix(fname, ".toml")
		if err := b.define(name, path, data); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

func (b *Builder) define(name, path string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	var tc tomlCommand
	if err := toml.Unmarshal(data, &tc); err != nil {
		return fmt.Errorf("invalid command TOML: %w", err)
	}
	cmd := tc.toCommand(name, path)
	if existing, ok := b.reg.commands[name]; ok {
		slog.Debug("command redefined", "name", name, "previous", existing.DefinedIn, "new", path)
		cmd.DefinedIn = append(append([]string{}, existing.DefinedIn...), path)
	}
	b.reg.commands[name] = cmd
	return nil
}

// Build finalizes the Registry.
func (b *Builder) Build() Registry {
	return b.reg
}

// Command looks up a command by name.
func (r Registry) Command(name string) (Command, error) {
	c, ok := r.commands[name]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", name)
	}
	return c, nil
}

// IsEmpty reports whether the registry has no commands at all (only
// possible if built directly rather than via NewBuilder).
func (r Registry) IsEmpty() bool {
	return len(r.commands) == 0
}

// Commands returns every command, sorted by name.
func (r Registry) Commands() []Command {
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Command, 0, len(names))
	for _, n := range names {
		out = append(out, r.commands[n])
	}
	return out
}

// ListCommands renders a human-readable listing, one line per command (or
// one paragraph, in verbose mode) -- the output of `clrm command-list`.
func (r Registry) ListCommands(verbose bool) string {
	var b strings.Builder
	for _, c := range r.Commands() {
		if verbose {
			b.WriteString(c.String())
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", c.Name, c.Help)
	}
	return b.String()
}
