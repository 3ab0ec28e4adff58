package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/banksean/clrm/ledger"
)

// HistoryCmd prints the recorded runs from a build's ledger database,
// most recent first.
type HistoryCmd struct {
	ArtifactsDirectory string `default:"." env:"CLRM_ARTIFACTS_DIR" help:"directory the ledger database lives under"`
	LedgerPath         string `default:"clrm.db" env:"CLRM_LEDGER_PATH" help:"path to the build-history sqlite database"`
}

func (c *HistoryCmd) Run(cctx *Context) error {
	l, err := ledger.Open(filepath.Join(c.ArtifactsDirectory, c.LedgerPath))
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN NAME\tSTARTED\tVERSION\tCOMMAND\tPHASES COMPLETED\tSUCCESS\t")
	for _, e := range entries {
		phases := make([]string, 0, len(e.PhasesCompleted))
		for _, p := range e.PhasesCompleted {
			phases = append(phases, p.String())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t\n",
			e.RunName, e.StartedAt.Format("2006-01-02T15:04:05"), e.Version, e.Command,
			strings.Join(phases, ","), e.Success)
	}
	return w.Flush()
}
