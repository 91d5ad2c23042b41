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

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pgedge/recode/internal/recode"
	"github.com/pgedge/recode/pkg/config"
	"github.com/pgedge/recode/pkg/logger"
	"github.com/urfave/cli/v2"
)

const configEnvVar = "RECODE_CONFIG"

func SetupCLI() *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "schema",
			Aliases:  []string{"s"},
			Usage:    "Schema of the table to check",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "table",
			Aliases:  []string{"t"},
			Usage:    "Table to check",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    "update",
			Aliases: []string{"u"},
			Usage:   "Apply the corrections (default: only generate them)",
			Value:   false,
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"v"},
			Usage:   "Print every generated statement and enable debug logging",
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to recode.yaml (default: $" + configEnvVar + ", ./recode.yaml, ~/.config/recode, /etc/recode)",
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Aliases: []string{"b"},
			Usage:   fmt.Sprintf("Rows fetched per round trip (1-%d)", config.MaxBatchSize),
			Value:   config.DefaultBatchSize,
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Whether to suppress the progress bar",
			Value:   false,
		},
		&cli.BoolFlag{
			Name:    "generate-report",
			Aliases: []string{"r"},
			Usage:   "Write a JSON report of the run",
			Value:   false,
		},
		&cli.BoolFlag{
			Name:  "skip-history",
			Usage: "Do not record the run in the task store",
			Value: false,
		},
		&cli.BoolFlag{
			Name:  "install-key-function",
			Usage: "Create or replace the unique key function before the run",
			Value: false,
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Aliases: []string{"l"},
			Usage:   "Directory for the query log",
		},
	}

	app := &cli.App{
		Name:      "recode",
		Usage:     "Find Latin-1 text stored in a SQL_ASCII table and rewrite it as UTF-8",
		UsageText: "recode --schema <schema> --table <table> [--update] [--debug]",
		Flags:     flags,
		Before: func(ctx *cli.Context) error {
			logger.SetDebug(ctx.Bool("debug"))
			return nil
		},
		Action: RecodeCLI,
	}
	return app
}

func RecodeCLI(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return err
	}

	task, err := newTaskFromFlags(ctx, cfg)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if err := task.Run(ctx.Context); err != nil {
		return fmt.Errorf("error during recode of %s.%s: %w", task.Schema, task.Table, err)
	}
	return nil
}

func newTaskFromFlags(ctx *cli.Context, cfg *config.Config) (*recode.RecodeTask, error) {
	if ctx.IsSet("batch-size") {
		if err := config.ValidateBatchSize(ctx.Int("batch-size")); err != nil {
			return nil, err
		}
		cfg.Recode.BatchSize = ctx.Int("batch-size")
	}
	if dir := strings.TrimSpace(ctx.String("log-dir")); dir != "" {
		cfg.Recode.LogDir = dir
	}
	if cfg.DebugMode {
		logger.SetDebug(true)
	}

	task := recode.NewRecodeTask()
	task.Schema = ctx.String("schema")
	task.Table = ctx.String("table")
	task.Config = cfg
	task.Update = ctx.Bool("update")
	task.Debug = ctx.Bool("debug")
	task.Quiet = ctx.Bool("quiet")
	task.GenerateReport = ctx.Bool("generate-report")
	task.SkipHistory = ctx.Bool("skip-history")
	task.InstallKeyFunction = ctx.Bool("install-key-function")

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// configCandidates lists config locations in order of precedence:
//  1. --config
//  2. env var (RECODE_CONFIG)
//  3. current dir
//  4. $HOME/.config/recode/
//  5. /etc/recode/
func configCandidates(flagPath string) []string {
	var paths []string
	if flagPath != "" {
		paths = append(paths, flagPath)
	}
	if envPath := os.Getenv(configEnvVar); envPath != "" {
		paths = append(paths, envPath)
	}
	paths = append(paths, "recode.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "recode", "recode.yaml"))
	}
	return append(paths, "/etc/recode/recode.yaml")
}

// findConfig returns the first config file that exists, or "" when none
// does. A path given with --config must exist.
func findConfig(flagPath string) (string, error) {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", flagPath, err)
		}
		return flagPath, nil
	}
	for _, p := range configCandidates("") {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("skipping config %s: %v", p, err)
		}
	}
	return "", nil
}

func loadConfig(flagPath string) (*config.Config, error) {
	path, err := findConfig(flagPath)
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Debug("no recode.yaml found, using defaults")
		config.Cfg = config.Default()
		return config.Cfg, nil
	}
	if err := config.Init(path); err != nil {
		return nil, fmt.Errorf("loading config (%s): %w", path, err)
	}
	logger.Debug("loaded config from %s", path)
	return config.Cfg, nil
}
