package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"
	"github.com/posener/complete"

	"github.com/banksean/clrm/phase"
)

// Context is the shared state every subcommand's Run method receives.
type Context struct {
	LogFile  string
	LogLevel string
}

type CLI struct {
	LogFile  string `default:"" placeholder:"<log-file-path>" help:"location of log file (leave empty for a random tmp/ path)"`
	LogLevel string `default:"warn" placeholder:"<debug|info|warn|error>" help:"the logging level (debug, info, warn, error)"`

	Build       BuildCmd       `cmd:"" help:"run a command through every build phase"`
	BuildAgent  BuildAgentCmd  `cmd:"" hidden:"" help:"run as an agent inside a container; for internal use"`
	CommandList CommandListCmd `cmd:"" help:"print a list of known commands"`
	DumpCommand DumpCommandCmd `cmd:"" help:"dump a command definition to stdout"`
	History     HistoryCmd     `cmd:"" help:"print a history of build runs from the ledger"`
	Doc         DocCmd         `cmd:"" help:"print complete command help formatted as markdown"`
	Version     VersionCmd     `cmd:"" help:"print version information about this command"`

	Completion kongcompletion.Cmd `cmd:"" help:"print shell completion scripts"`
}

const description = `Build a container image across a fixed sequence of phases: prepare,
install, polish, test, build_artifacts, test_artifacts. Each phase runs a
command's compiled script inside a systemd-nspawn container and reports
variables and dependencies back through a line-tagged stdout protocol.`

func (c *CLI) initSlog(cctx *kong.Context) {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	var f *os.File
	var err error
	if c.LogFile == "" {
		f, err = os.CreateTemp("", "clrm-log")
		if err != nil {
			panic(err)
		}
	} else {
		if dir := filepath.Dir(c.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				panic(err)
			}
		}
		f, err = os.OpenFile(c.LogFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			panic(err)
		}
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slog.Info("slog initialized", "logFile", f.Name())
}

func main() {
	var cli CLI

	parser, err := kong.New(&cli,
		kong.Configuration(kongyaml.Loader, "clrm.yaml", "~/.clrm.yaml"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Vars{"version": "0.1.0"},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build command parser: %v\n", err)
		os.Exit(1)
	}

	kongcompletion.Register(parser,
		kongcompletion.WithPredictor("phase", phasePredictor{}),
	)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cli.initSlog(kctx)

	runErr := kctx.Run(&Context{LogFile: cli.LogFile, LogLevel: cli.LogLevel})
	kctx.FatalIfErrorf(runErr)
}

// phasePredictor completes the six fixed phase names for flags like
// --enter-phase and --networked-phases.
type phasePredictor struct{}

func (phasePredictor) Predict(complete.Args) []string {
	names := make([]string, 0, len(phase.All()))
	for _, p := range phase.All() {
		names = append(names, p.String())
	}
	return names
}
