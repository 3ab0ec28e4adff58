// Package driver runs a command through every build phase, compiling a
// script per phase, launching it in a container via runner.Runner, and
// parsing the agent protocol out of the container's stdout as it streams
// back.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/banksean/clrm/clrmctx"
	"github.com/banksean/clrm/mount"
	"github.com/banksean/clrm/phase"
	"github.com/banksean/clrm/protocol"
	"github.com/banksean/clrm/registry"
	"github.com/banksean/clrm/runner"
	"github.com/banksean/clrm/script"
)

var tracer = otel.Tracer("github.com/banksean/clrm/driver")

// Printer is the narrow logging surface the driver needs: status lines
// and nested status frames from STATUS/PUSH/POP protocol commands, and
// raw stdout/stderr passthrough for anything that is not a protocol line.
type Printer interface {
	Status(message string)
	PushStatus(text string)
	PopStatus()
	Stdout(line string)
	Stderr(line string)
}

// Driver runs a command through every phase of a build.
type Driver struct {
	Registry registry.Registry
	Runner   runner.Runner
	Printer  Printer
}

// Run executes commandName through every phase in order, or, if
// enterPhase is non-nil, runs every phase before enterPhase normally and
// then drops into an interactive shell inside enterPhase's container
// instead of running the agent, stopping there.
func (d Driver) Run(ctx context.Context, bctx *clrmctx.BuildContext, commandName string, args []string, enterPhase *phase.Phase) error {
	cmd, err := d.Registry.Command(commandName)
	if err != nil {
		return err
	}

	for _, p := range phase.All() {
		if err := d.runPhase(ctx, bctx, cmd, args, p, enterPhase); err != nil {
			return fmt.Errorf("phase %s: %w", p, err)
		}
		if enterPhase != nil && p == *enterPhase {
			return nil
		}
	}
	return nil
}

func (d Driver) runPhase(ctx context.Context, bctx *clrmctx.BuildContext, cmd registry.Command, args []string, p phase.Phase, enterPhase *phase.Phase) error {
	ctx, span := tracer.Start(ctx, "phase", trace.WithAttributes(attribute.String("clrm.phase", p.String())))
	defer span.End()

	d.Printer.Status(fmt.Sprintf("entering %s", p))

	plan := mount.ForPhase(p, bctx.BootstrapEnv, bctx.RootDirectory, bctx.ArtifactsDirectory, bctx.NetworkedPhases[p], bctx.ExtraBindings)

	scriptPath, err := script.Compile(bctx, d.Registry, cmd.Name, args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	plan.Bindings = append(plan.Bindings,
		mount.RO(bctx.SelfBinary, "/tmp/clrm/agent"),
		mount.RO(bctx.BusyboxBinary, "/tmp/clrm/busybox"),
		mount.RO(scriptPath, "/tmp/clrm/script.sh"),
	)

	interactive := enterPhase != nil && p == *enterPhase
	if interactive {
		err := d.runInteractive(ctx, plan)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	prefix := uuid.New().String() + ": "
	err = d.Runner.Run(ctx, plan, "/tmp/clrm/agent",
		[]string{"build-agent", "--command-prefix=" + prefix, p.String()},
		func(line string) {
			if !protocol.HandleLine(line, prefix, bctx, d.Printer) {
				d.Printer.Stdout(line)
			}
		},
		func(line string) { d.Printer.Stderr(line) },
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to containerize: %w", err)
	}

	// A dependency registered during p becomes visible to the driver only
	// now that p has completed cleanly.
	for _, dep := range bctx.TakeDependencies() {
		d.Printer.Status(fmt.Sprintf("phase %s depends on %s", p, dep))
	}
	return nil
}

// runInteractive drops into an interactive busybox shell inside the
// phase's container instead of running the agent, used by --enter-phase.
// It bypasses runner.Runner's line-oriented streaming (which is for
// parsing the agent protocol, not for terminal interaction) and wires the
// container's stdio directly to the calling terminal, allocating a pty
// when standard input is not already one.
func (d Driver) runInteractive(ctx context.Context, plan mount.Plan) error {
	nspawnPath := d.Runner.NspawnPath
	if nspawnPath == "" {
		nspawnPath = "systemd-nspawn"
	}
	args := buildInteractiveArgs(plan)
	cmd := exec.CommandContext(ctx, nspawnPath, args...)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to allocate pty for interactive phase: %w", err)
	}
	defer ptmx.Close()
	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	_, _ = io.Copy(os.Stdout, ptmx)
	return cmd.Wait()
}

func buildInteractiveArgs(plan mount.Plan) []string {
	args := []string{
		"--settings=off", "--register=off", "--resolv-conf=off", "--timezone=off",
		"--link-journal=no", "--console=interactive", "--volatile=yes",
	}
	for _, b := range plan.Bindings {
		args = append(args, b.Arg())
	}
	args = append(args, "--directory="+plan.Environment.Directory, "--", "/tmp/clrm/busybox", "sh")
	return args
}
