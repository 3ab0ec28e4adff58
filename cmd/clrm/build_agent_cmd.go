package main

import (
	"context"

	"github.com/banksean/clrm/agentrun"
	"github.com/banksean/clrm/phase"
)

// BuildAgentCmd runs inside a phase's container: it execs the compiled
// script under busybox and relays its stdout back to the host, tagging
// protocol lines with CommandPrefix. The driver invokes this as a
// subprocess of itself; it is not meant to be run by hand.
type BuildAgentCmd struct {
	CommandPrefix string     `short:"c" required:"" help:"the prefix used to send commands to the agent runner"`
	Phase         phase.Phase `arg:"" help:"the phase to run"`
}

func (c *BuildAgentCmd) Run(cctx *Context) error {
	return agentrun.Run(context.Background(), c.CommandPrefix, c.Phase)
}
