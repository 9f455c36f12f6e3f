// Package main is the entry point for the Satchel CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrz1836/satchel/internal/cli"
	"github.com/mrz1836/satchel/internal/version"
)

//nolint:gochecknoglobals // set by goreleaser ldflags
var (
	buildVersion = ""
	buildCommit  = ""
	buildDate    = ""
)

func main() {
	if buildVersion != "" {
		version.Version, version.Commit, version.Date = buildVersion, buildCommit, buildDate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
