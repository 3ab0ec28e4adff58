// Package script compiles a registry command, a variable context and a
// set of positional arguments into a single POSIX shell script that the
// container runner binds into the container and the in-container agent
// executes.
package script

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/banksean/clrm/clrmctx"
	"github.com/banksean/clrm/phase"
	"github.com/banksean/clrm/registry"
)

// Escape quotes s for safe inclusion in a double-quoted shell word:
// backslash and double quote are escaped, every other character is
// carried through literally (invariant I-Shell-Escape). The result
// includes the surrounding pair of double quotes.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// stripShebang removes a leading "#!/bin/sh" or "#!/usr/bin/sh" line from
// an included snippet before it is embedded into a section, so nested
// scripts never end up with a shebang in the middle of the file.
func stripShebang(body string) string {
	if strings.HasPrefix(body, "#!/bin/sh") || strings.HasPrefix(body, "#!/usr/bin/sh") {
		_, rest, found := strings.Cut(body, "\n")
		if found {
			return rest
		}
		return ""
	}
	return body
}

// section wraps body between "### <name>" and "### </name>" markers, the
// same bracketing a generated script uses throughout so a human (or a
// debugger reading CLRM_TRACE_SCRIPT output) can tell which part of the
// script came from where.
func section(name, body string) string {
	return fmt.Sprintf("### <%s>\n%s\n### </%s>\n", name, strings.TrimRight(body, "\n"), name)
}

// header defines the shell helpers every compiled script can call: a
// nested status stack (status/push_status/pop_status) and the protocol
// emitters a recipe or the harness around it invokes. Each emitter writes
// one line to stdout; the in-container agent relays it to the host
// orchestrator with the run's command prefix prepended.
const header = `status() { printf 'STATUS %s\n' "$*"; }
push_status() { printf 'PUSH %s\n' "$*"; }
pop_status() { printf 'POP\n'; }
SET() { printf 'SET %s\n' "$1"; }
SET_RO() { printf 'SET_RO %s\n' "$1"; }
STATUS() { status "$@"; }
ADD_DEPENDENCY() { printf 'ADD_DEPENDENCY %s\n' "$1"; }
PUSH() { push_status "$@"; }
POP() { pop_status; }`

// preCommand runs just before the starting command is invoked.
const preCommand = `status "running ${1:-command}"`

// footer runs after the starting command returns, and its exit status is
// the script's own (set -e means a failure above never reaches here).
const footer = `status "done"`

// phaseDefinitions renders one read-only shell variable per Phase, named
// PHASE_<UPPER> = <lower>, so a recipe can branch on the current phase
// without string-matching $1 itself.
func phaseDefinitions() string {
	var b strings.Builder
	for _, p := range phase.All() {
		fmt.Fprintf(&b, "readonly PHASE_%s=%s\n", strings.ToUpper(p.String()), p.String())
	}
	return b.String()
}

// commandDefinitions renders every command in reg as a callable shell
// function: it pushes a status frame named after the command, binds its
// declared inputs positionally (shifting them off, failing fast unless
// the input is optional), runs the command's script body verbatim, then
// pops the status frame.
func commandDefinitions(reg registry.Registry) string {
	var b strings.Builder
	for _, cmd := range reg.Commands() {
		fmt.Fprintf(&b, "%s() {\n", cmd.Name)
		fmt.Fprintf(&b, "  push_status %s\n", Escape(cmd.Name))
		for _, in := range cmd.Inputs {
			if in.Optional {
				fmt.Fprintf(&b, "  %s=${1:-%s}; shift 2>/dev/null || true\n", in.Name, Escape(in.Default))
			} else {
				fmt.Fprintf(&b, "  %s=${1:?missing required input %s}; shift\n", in.Name, in.Name)
			}
		}
		b.WriteString("  (\n")
		b.WriteString(indent(stripShebang(cmd.Script)))
		b.WriteString("  )\n")
		b.WriteString("  pop_status\n")
		b.WriteString("}\n")
	}
	return b.String()
}

func indent(body string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Compile renders reg's full set of commands as callable shell functions,
// binds startCommand's positional inputs from args, and produces a
// complete shell script at <workDir>/script.sh that invokes startCommand
// by name. It returns the path to that file.
func Compile(ctx *clrmctx.BuildContext, reg registry.Registry, startCommand string, args []string) (string, error) {
	cmd, err := reg.Command(startCommand)
	if err != nil {
		return "", err
	}
	if _, err := bindInputs(cmd, args); err != nil {
		return "", fmt.Errorf("binding inputs for %q: %w", cmd.Name, err)
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh -e\n")
	if ctx.DebugOptions["TraceAgentScript"] {
		b.WriteString("set -x\n")
	}
	b.WriteString("\n")
	b.WriteString(section("header", header))
	b.WriteString("\n")
	b.WriteString(section("phase definitions", phaseDefinitions()))
	b.WriteString("\n")
	b.WriteString(section("command definitions", commandDefinitions(reg)))
	b.WriteString("\n")
	b.WriteString(section("system environment", renderEnv(ctx)))
	b.WriteString("\n")
	b.WriteString(section("pre-command", preCommand))
	b.WriteString("\n")
	b.WriteString(section("command", renderInvocation(cmd.Name, args)))
	b.WriteString("\n")
	b.WriteString(section("footer", footer))

	workDir := ctx.WorkDirectory
	if workDir == "" {
		workDir = "."
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	path := filepath.Join(workDir, "script.sh")
	compiled := b.String()
	if err := os.WriteFile(path, []byte(compiled), 0o755); err != nil {
		return "", fmt.Errorf("writing compiled script: %w", err)
	}

	if ctx.DebugOptions["PrintAgentScript"] {
		slog.Info("compiled agent script", "path", path, "script", compiled)
	}
	return path, nil
}

func bindInputs(cmd registry.Command, args []string) ([][2]string, error) {
	bound := make([][2]string, 0, len(cmd.Inputs))
	for i, in := range cmd.Inputs {
		var value string
		switch {
		case i < len(args):
			value = args[i]
		case in.Optional:
			value = in.Default
		default:
			return nil, fmt.Errorf("missing required input %q", in.Name)
		}
		bound = append(bound, [2]string{in.Name, value})
	}
	return bound, nil
}

// renderInvocation renders the single line that invokes the starting
// command by name with its positional arguments.
func renderInvocation(name string, args []string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(Escape(a))
	}
	b.WriteByte('\n')
	return b.String()
}

// renderEnv emits every non-internal variable as NAME="value" with
// shell-escaping, additionally declaring read-only entries with readonly.
func renderEnv(ctx *clrmctx.BuildContext) string {
	var b strings.Builder
	for _, name := range ctx.Names() {
		v, ok := ctx.Variable(name)
		if !ok || v.Internal {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", v.Name, Escape(v.Value))
		if v.ReadOnly {
			fmt.Fprintf(&b, "readonly %s\n", v.Name)
		}
	}
	return b.String()
}
