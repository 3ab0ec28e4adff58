package script

import (
	"os"
	"strings"
	"testing"

	"github.com/banksean/clrm/clrmctx"
	"github.com/banksean/clrm/registry"
)

func TestEscape(t *testing.T) {
	cases := map[string]string{
		"":                                  `""`,
		"foo":                               `"foo"`,
		"foo bar":                           `"foo bar"`,
		"foobar 1, 2, 3, 4, XYZ # bar foo":  `"foobar 1, 2, 3, 4, XYZ # bar foo"`,
		`it's`:                              `"it's"`,
		`say "hi"`:                          `"say \"hi\""`,
		`back\slash`:                        `"back\\slash"`,
	}
	for in, want := range cases {
		if got := Escape(in); got != want {
			t.Errorf("Escape(%q) = %q, want %q", in, got, want)
		}
	}
}

func buildRegistry(t *testing.T, files map[string]string) registry.Registry {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		if err := os.WriteFile(dir+"/"+name+".toml", []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	b, err := registry.NewBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if err := b.ScanDirectory(dir); err != nil {
		t.Fatal(err)
	}
	return b.Build()
}

func TestCompileWritesSectionsInOrder(t *testing.T) {
	reg := buildRegistry(t, map[string]string{
		"greet": `help = "greets someone"
script = """
STATUS "hello ${name}"
"""

[[inputs]]
name = "name"
`,
	})

	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()
	_ = ctx.Set("FOO", "bar", false, false, false)

	path, err := Compile(ctx, reg, "greet", []string{"world"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	script := string(data)

	if !strings.HasPrefix(script, "#!/bin/sh -e\n") {
		t.Fatalf("script does not start with the fixed shebang:\n%s", script)
	}

	order := []string{
		"### <header>", "### </header>",
		"### <phase definitions>",
		"readonly PHASE_PREPARE=prepare",
		"readonly PHASE_TEST_ARTIFACTS=test_artifacts",
		"### </phase definitions>",
		"### <command definitions>",
		"greet() {", "### </command definitions>",
		"### <system environment>", `FOO="bar"`, "### </system environment>",
		"### <pre-command>", "### </pre-command>",
		"### <command>", `greet "world"`, "### </command>",
		"### <footer>", "### </footer>",
	}
	last := -1
	for _, marker := range order {
		idx := strings.Index(script, marker)
		if idx < 0 {
			t.Fatalf("missing marker %q in script:\n%s", marker, script)
		}
		if idx < last {
			t.Fatalf("marker %q out of order", marker)
		}
		last = idx
	}
}

func TestCompileReadOnlyVariableDeclaredReadonly(t *testing.T) {
	reg := buildRegistry(t, map[string]string{
		"noop2": `help = "does nothing"
script = "STATUS nothing"
`,
	})
	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()
	_ = ctx.Set("VERSION", "1.2.3", true, false, false)

	path, err := Compile(ctx, reg, "noop2", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "readonly VERSION") {
		t.Errorf("expected readonly declaration for read-only variable, got:\n%s", data)
	}
}

func TestCompileInternalVariableExcludedFromEnv(t *testing.T) {
	reg := buildRegistry(t, map[string]string{
		"noop3": `help = "does nothing"
script = "STATUS nothing"
`,
	})
	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()
	_ = ctx.Set("_HIDDEN", "secret", false, true, false)

	path, err := Compile(ctx, reg, "noop3", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "secret") {
		t.Errorf("internal variable leaked into compiled script:\n%s", data)
	}
}

func TestCompileMissingRequiredInput(t *testing.T) {
	reg := buildRegistry(t, map[string]string{
		"needs-arg": `help = "needs an arg"
script = "true"

[[inputs]]
name = "required"
`,
	})
	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()

	if _, err := Compile(ctx, reg, "needs-arg", nil); err == nil {
		t.Fatal("expected error for missing required input")
	}
}

func TestCompileOptionalInputDefault(t *testing.T) {
	reg := buildRegistry(t, map[string]string{
		"optional-arg": `help = "has an optional arg"
script = "true"

[[inputs]]
name = "level"
optional = true
default = "info"
`,
	})
	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()

	path, err := Compile(ctx, reg, "optional-arg", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `level=${1:-"info"}`) {
		t.Errorf("expected default value bound in command definition, got:\n%s", data)
	}
}

func TestCompileTraceAgentScriptEnablesSetX(t *testing.T) {
	reg := buildRegistry(t, map[string]string{
		"noop4": `help = "does nothing"
script = "STATUS nothing"
`,
	})
	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()
	ctx.DebugOptions["TraceAgentScript"] = true

	path, err := Compile(ctx, reg, "noop4", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\nset -x\n") {
		t.Errorf("expected set -x to be emitted, got:\n%s", data)
	}
}

func TestCompileUnknownStartCommand(t *testing.T) {
	reg := buildRegistry(t, nil)
	ctx := clrmctx.NewBuildContext(clrmctx.NewRootContext())
	ctx.WorkDirectory = t.TempDir()

	if _, err := Compile(ctx, reg, "does-not-exist", nil); err == nil {
		t.Fatal("expected error for unknown starting command")
	}
}
