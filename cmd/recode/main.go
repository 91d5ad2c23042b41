// ///////////////////////////////////////////////////////////////////////////
//
// # recode - Latin-1 to UTF-8 table repair
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pgedge/recode/internal/cli"
	"github.com/pgedge/recode/pkg/logger"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.SetupCLI()
	if err := app.RunContext(runCtx, os.Args); err != nil {
		stop()
		logger.Fatal("%v", err)
	}
}
