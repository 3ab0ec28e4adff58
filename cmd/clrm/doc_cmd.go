package main

import "github.com/alecthomas/kong"

// DocCmd prints the full command tree's help, formatted as markdown,
// using MarkdownHelpPrinter instead of kong's default plain-text
// renderer.
type DocCmd struct{}

func (c *DocCmd) Run(cctx *Context, kctx *kong.Context) error {
	return MarkdownHelpPrinter(kong.HelpOptions{}, kctx)
}
