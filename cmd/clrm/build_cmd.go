package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goombaio/namegenerator"

	"github.com/banksean/clrm/artifactsink"
	"github.com/banksean/clrm/clrmctx"
	"github.com/banksean/clrm/driver"
	"github.com/banksean/clrm/ledger"
	"github.com/banksean/clrm/mount"
	"github.com/banksean/clrm/ociboot"
	"github.com/banksean/clrm/phase"
	"github.com/banksean/clrm/registry"
	"github.com/banksean/clrm/runner"
)

// BuildCmd runs a command through every build phase.
type BuildCmd struct {
	WorkDirectory      string `default:"./work" env:"CLRM_WORK_DIR" help:"directory to create temporary files in"`
	ArtifactsDirectory string `default:"." env:"CLRM_ARTIFACTS_DIR" help:"directory to store the final artifacts into"`
	Timestamp          string `help:"the current time, used as a version if nothing else is specified"`
	ArtifactVersion    string `help:"the version string to use (defaults to timestamp if unset)"`
	BusyboxBinary      string `default:"/usr/bin/busybox" env:"CLRM_BUSYBOX" help:"the busybox binary to use"`

	BootstrapImage     string `env:"CLRM_BOOTSTRAP_IMAGE" xor:"bootstrap" help:"a disk image, or oci:<reference>, to use as a bootstrap environment (conflicts with --bootstrap-directory)"`
	BootstrapDirectory string `env:"CLRM_BOOTSTRAP_DIR" xor:"bootstrap" help:"a bootstrap environment already installed into a directory (conflicts with --bootstrap-image)"`

	ExtraBindings     []string     `env:"CLRM_EXTRA_BINDINGS" sep:"," help:"additional kind:host:inside bindings to add to every phase's container"`
	ExtraCommandPath  []string     `env:"CLRM_EXTRA_COMMAND_PATH" sep:":" help:"extends the default lookup path for commands; later directories (or ssh:// remotes) overwrite commands from earlier ones"`
	NetworkedPhases   []phase.Phase `env:"CLRM_NETWORKED_PHASES" sep:"," help:"phases whose containers get network access"`
	EnterPhase        *phase.Phase `help:"run every phase before this one normally, then drop into an interactive shell in this phase's container instead of running its agent"`

	ArtifactSinkAddr string `help:"gRPC address of a remote collector to push the artifacts directory to after a successful build"`
	OTLPEndpoint     string `help:"OTLP/gRPC endpoint to export phase traces to"`
	LedgerPath       string `default:"clrm.db" env:"CLRM_LEDGER_PATH" help:"path to the build-history sqlite database"`

	Command string   `arg:"" help:"the command to run"`
	Args    []string `arg:"" optional:"" passthrough:"" help:"positional inputs for the command"`

	DebugOptions []string `env:"CLRM_TRACE_SCRIPT" sep:"," hidden:"" help:"internal debug toggles"`
}

func (c *BuildCmd) Run(cctx *Context) error {
	ctx := context.Background()

	if err := verifyPrerequisites(ctx, "linux", "systemd-nspawn"); err != nil {
		return err
	}

	if c.OTLPEndpoint != "" {
		shutdown, err := artifactsink.NewTracerProvider(ctx, c.OTLPEndpoint, "clrm")
		if err != nil {
			return fmt.Errorf("configuring tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if err := os.MkdirAll(c.WorkDirectory, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	if err := os.MkdirAll(c.ArtifactsDirectory, 0o755); err != nil {
		return fmt.Errorf("creating artifacts directory: %w", err)
	}

	reg, err := c.buildRegistry()
	if err != nil {
		return err
	}

	bctx, err := c.buildContext(reg)
	if err != nil {
		return err
	}

	printer := &stdPrinter{}
	d := driver.Driver{Registry: reg, Runner: runner.Runner{}, Printer: printer}

	var enterPhase *phase.Phase
	if c.EnterPhase != nil {
		enterPhase = c.EnterPhase
	}

	runErr := d.Run(ctx, bctx, c.Command, c.Args, enterPhase)

	if l, lerr := ledger.Open(filepath.Join(c.ArtifactsDirectory, c.LedgerPath)); lerr == nil {
		entry := ledger.Entry{
			RunName:         bctx.RunName,
			StartedAt:       time.Now(),
			Version:         c.resolveVersion(),
			Command:         c.Command,
			PhasesCompleted: completedPhases(enterPhase),
			ArtifactsDir:    c.ArtifactsDirectory,
			Success:         runErr == nil,
		}
		if runErr != nil {
			entry.Error = runErr.Error()
		}
		if err := l.Record(ctx, entry); err != nil {
			slog.Error("failed to record ledger entry", "error", err)
		}
		_ = l.Close()
	} else {
		slog.Warn("failed to open build ledger", "error", lerr)
	}

	if runErr != nil {
		return runErr
	}

	if c.ArtifactSinkAddr != "" {
		sink, err := artifactsink.Dial(ctx, c.ArtifactSinkAddr)
		if err != nil {
			return fmt.Errorf("dialing artifact sink: %w", err)
		}
		defer sink.Close()
		if err := sink.PushDirectory(ctx, c.ArtifactsDirectory); err != nil {
			return fmt.Errorf("pushing artifacts: %w", err)
		}
	}

	return nil
}

func completedPhases(enterPhase *phase.Phase) []phase.Phase {
	all := phase.All()
	if enterPhase == nil {
		return all
	}
	out := []phase.Phase{}
	for _, p := range all {
		out = append(out, p)
		if p == *enterPhase {
			break
		}
	}
	return out
}

func (c *BuildCmd) resolveVersion() string {
	if c.ArtifactVersion != "" {
		return c.ArtifactVersion
	}
	if c.Timestamp != "" {
		return c.Timestamp
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// buildRegistry assembles the command registry from the built-in
// commands plus every --extra-command-path entry, in order, so later
// directories overwrite commands defined by earlier ones. Entries of the
// form "ssh://host-alias/dir" are fetched from the remote host first.
func (c *BuildCmd) buildRegistry() (registry.Registry, error) {
	return scanCommandPath(c.ExtraCommandPath)
}

func (c *BuildCmd) resolveBootstrapEnvironment() (mount.RunEnvironment, error) {
	value := c.BootstrapImage
	if value == "" {
		value = c.BootstrapDirectory
	}
	if value == "" {
		return mount.RunEnvironment{}, nil
	}

	if ociboot.IsReference(value) {
		cacheDir := filepath.Join(c.WorkDirectory, "oci-cache")
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return mount.RunEnvironment{}, err
		}
		return ociboot.Resolve(value, cacheDir)
	}
	if c.BootstrapImage != "" {
		return mount.NewImageEnvironment(c.BootstrapImage), nil
	}
	return mount.NewDirectoryEnvironment(c.BootstrapDirectory), nil
}

func (c *BuildCmd) buildContext(reg registry.Registry) (*clrmctx.BuildContext, error) {
	bootstrapEnv, err := c.resolveBootstrapEnvironment()
	if err != nil {
		return nil, err
	}
	if err := bootstrapEnv.Validate(); err != nil {
		return nil, fmt.Errorf("resolving bootstrap environment: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("finding current executable path: %w", err)
	}

	root := clrmctx.NewRootContext()
	version := c.resolveVersion()
	if err := root.Set("VERSION", version, true, false, true); err != nil {
		return nil, err
	}

	rootWorkDir, err := filepath.Abs(c.WorkDirectory)
	if err != nil {
		return nil, err
	}
	rootFS := filepath.Join(rootWorkDir, "root_fs")
	if err := os.MkdirAll(rootFS, 0o755); err != nil {
		return nil, err
	}

	bctx := clrmctx.NewBuildContext(root.Inherit())
	bctx.WorkDirectory = rootWorkDir
	bctx.ArtifactsDirectory = c.ArtifactsDirectory
	bctx.BusyboxBinary = c.BusyboxBinary
	bctx.SelfBinary = self
	bctx.RootDirectory = rootFS
	bctx.BootstrapEnv = bootstrapEnv
	bctx.RunName = generateRunName()

	for _, p := range c.NetworkedPhases {
		bctx.NetworkedPhases[p] = true
	}
	for _, opt := range c.DebugOptions {
		bctx.DebugOptions[opt] = true
	}
	for _, raw := range c.ExtraBindings {
		b, err := mount.ParseBinding(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing --extra-bindings entry %q: %w", raw, err)
		}
		bctx.ExtraBindings = append(bctx.ExtraBindings, b)
	}

	if reg.IsEmpty() {
		slog.Warn("command registry has no commands loaded")
	}

	return bctx, nil
}

func generateRunName() string {
	return namegenerator.NewNameGenerator(time.Now().UTC().UnixNano()).Generate()
}

// stdPrinter renders phase status and container stderr to stderr and
// container stdout to stdout, in the style of a build log: status lines
// are prefixed for visibility, stdout and stderr passthrough is left
// unprefixed.
type stdPrinter struct{}

func (stdPrinter) Status(message string) { fmt.Fprintf(os.Stderr, "==> %s\n", message) }
func (stdPrinter) PushStatus(text string) {
	if text != "" {
		fmt.Fprintf(os.Stderr, "--> %s\n", text)
	}
}
func (stdPrinter) PopStatus()         {}
func (stdPrinter) Stdout(line string) { fmt.Fprintln(os.Stdout, line) }
func (stdPrinter) Stderr(line string) { fmt.Fprintln(os.Stderr, line) }
