package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewBuilderLoadsBuiltins(t *testing.T) {
	b, err := NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	reg := b.Build()
	if reg.IsEmpty() {
		t.Fatal("expected built-in commands to be loaded")
	}
	if _, err := reg.Command("noop"); err != nil {
		t.Errorf("expected built-in noop command: %v", err)
	}
}

func TestOverwriteChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noop.toml")
	if err := os.WriteFile(path, []byte(`help = "overridden noop"
script = "STATUS \"overridden\""
`), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := b.ScanDirectory(dir); err != nil {
		t.Fatal(err)
	}
	reg := b.Build()

	cmd, err := reg.Command("noop")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Help != "overridden noop" {
		t.Errorf("expected overriding definition to win, got help=%q", cmd.Help)
	}
	if len(cmd.DefinedIn) != 2 {
		t.Errorf("expected a 2-entry overwrite chain, got %v", cmd.DefinedIn)
	}
}

func TestInvalidCommandName(t *testing.T) {
	if err := ValidateName("Bad-Name!"); err == nil {
		t.Fatal("expected error for invalid command name")
	}
}

func TestUnknownCommand(t *testing.T) {
	b, err := NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	reg := b.Build()
	if _, err := reg.Command("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
