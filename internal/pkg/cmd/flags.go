// Package cmd holds tools shared by the command line apps in this repo:
// kingpin flag structs, logging setup, and monitoring plumbing.
package cmd

import (
	kingpin "gopkg.in/alecthomas/kingpin.v2" // Command line flag parsing.
)

// Flagger defines command line flags and args.
// Examples: kingpin.Application and kingpin.CmdClause.
type Flagger interface {
	Flag(name string, help string) *kingpin.FlagClause
	Arg(name string, help string) *kingpin.ArgClause
}

var (
	_ Flagger = (*kingpin.Application)(nil)
	_ Flagger = (*kingpin.CmdClause)(nil)
)
