// Package protocol parses the line-tagged control protocol a compiled
// script's helper functions (SET, SET_RO, STATUS, ADD_DEPENDENCY, PUSH,
// POP) write to stdout, and that the in-container agent relays to the
// host orchestrator with a per-run UUID prefix.
package protocol

import (
	"log/slog"
	"strings"

	"github.com/banksean/clrm/clrmctx"
	"github.com/banksean/clrm/registry"
)

// Verb is one recognized protocol command.
type Verb string

const (
	Set           Verb = "SET"
	SetReadOnly   Verb = "SET_RO"
	Status        Verb = "STATUS"
	AddDependency Verb = "ADD_DEPENDENCY"
	Push          Verb = "PUSH"
	Pop           Verb = "POP"
)

// StatusSink receives the log-sink-facing side effects of the protocol:
// STATUS headlines, and PUSH/POP opening and closing a nested status
// frame. The CLI wires this to its printer; tests can wire it to
// StatusFuncs.
type StatusSink interface {
	Status(message string)
	PushStatus(text string)
	PopStatus()
}

// StatusFuncs adapts plain functions to StatusSink, for tests that only
// care about one of the three operations.
type StatusFuncs struct {
	OnStatus func(string)
	OnPush   func(string)
	OnPop    func()
}

func (f StatusFuncs) Status(message string) {
	if f.OnStatus != nil {
		f.OnStatus(message)
	}
}

func (f StatusFuncs) PushStatus(text string) {
	if f.OnPush != nil {
		f.OnPush(text)
	}
}

func (f StatusFuncs) PopStatus() {
	if f.OnPop != nil {
		f.OnPop()
	}
}

// HandleLine inspects line for the given prefix. If line does not start
// with prefix, it is not a protocol line at all and HandleLine returns
// false with no error: the caller should treat it as ordinary program
// output. If it does start with prefix, HandleLine always returns true,
// applies whatever side effect the verb implies to ctx (logging an error
// through slog on malformed input, exactly as an unrecognized or
// malformed line is handled rather than aborting the whole run), and
// forwards STATUS/PUSH/POP to sink if non-nil.
func HandleLine(line, prefix string, ctx *clrmctx.BuildContext, sink StatusSink) bool {
	cmd, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return false
	}

	switch {
	case strings.HasPrefix(cmd, string(Set)+" "):
		handleSet(strings.TrimPrefix(cmd, string(Set)+" "), ctx, false)
	case strings.HasPrefix(cmd, string(SetReadOnly)+" "):
		handleSet(strings.TrimPrefix(cmd, string(SetReadOnly)+" "), ctx, true)
	case strings.HasPrefix(cmd, string(Status)+" "):
		msg := unquote(strings.TrimSpace(strings.TrimPrefix(cmd, string(Status)+" ")))
		if sink != nil {
			sink.Status(msg)
		}
	case strings.HasPrefix(cmd, string(AddDependency)+" "):
		handleAddDependency(strings.TrimPrefix(cmd, string(AddDependency)+" "), ctx)
	case cmd == string(Push) || strings.HasPrefix(cmd, string(Push)+" "):
		text := unquote(strings.TrimSpace(strings.TrimPrefix(cmd, string(Push))))
		if sink != nil {
			sink.PushStatus(text)
		}
	case cmd == string(Pop):
		if sink != nil {
			sink.PopStatus()
		}
	default:
		slog.Error("agent asked to process unknown command", "command", cmd)
	}
	return true
}

func handleSet(rest string, ctx *clrmctx.BuildContext, readOnly bool) {
	k, v, ok := strings.Cut(rest, "=")
	if !ok {
		slog.Error("could not parse arguments after SET: no '=' found", "input", rest)
		return
	}
	k = unquote(strings.TrimSpace(k))
	v = unquote(strings.TrimSpace(v))
	if err := ctx.Set(k, v, readOnly, false, false); err != nil {
		slog.Error("could not parse arguments after SET", "name", k, "error", err)
	}
}

// handleAddDependency parses "var=cmd", validates both halves as a
// variable name and a command name respectively, and registers the pair,
// rejecting a duplicate var.
func handleAddDependency(rest string, ctx *clrmctx.BuildContext) {
	name, cmdName, ok := strings.Cut(rest, "=")
	if !ok {
		slog.Error("could not parse ADD_DEPENDENCY arguments: no '=' found", "input", rest)
		return
	}
	name = unquote(strings.TrimSpace(name))
	cmdName = unquote(strings.TrimSpace(cmdName))

	if err := clrmctx.ValidateName(name); err != nil {
		slog.Error("invalid ADD_DEPENDENCY variable name", "name", name, "error", err)
		return
	}
	if err := registry.ValidateName(cmdName); err != nil {
		slog.Error("invalid ADD_DEPENDENCY command name", "command", cmdName, "error", err)
		return
	}
	if err := ctx.AddDependency(clrmctx.Dependency{VariableName: name, CommandName: cmdName}); err != nil {
		slog.Error("could not add dependency", "variable", name, "command", cmdName, "error", err)
	}
}

// unquote strips a single layer of matching double quotes, if present,
// exactly the way the reference agent's line parser trims both whitespace
// and a surrounding quote pair before interpreting a token.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
