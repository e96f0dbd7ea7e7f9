// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package main is the entry point for the criticus command.
//
// Criticus augments a media library with third-party ratings. It lists
// items over the library's JSON-RPC endpoint, fans fetches out across
// rating providers under strict concurrency and rate budgets, merges
// the answers by provider trust priority, and writes changed records
// back.
//
// # Commands
//
//	criticus run [-kind movie|tvshow|episode|all] [-mode multi_source|dataset]
//	    Run one batch over the library and print the report.
//
//	criticus import
//	    Download the bulk ratings dataset snapshot into the local store.
//
//	criticus serve
//	    Run supervised: periodic refresh batches plus the ops HTTP
//	    endpoint (health, metrics, reports).
//
//	criticus check
//	    Verify connectivity to the library and every active provider.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables prefixed CRITICUS_, a config
// file (config.yaml, or CONFIG_PATH), and built-in defaults.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/logging"
)

func main() {
	command := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	// Cancelled on SIGINT/SIGTERM; batch runs observe it at every poll
	// boundary and keep partial progress.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = cmdRun(ctx, cfg, args)
	case "import":
		err = cmdImport(ctx, cfg)
	case "serve":
		err = cmdServe(ctx, cfg)
	case "check":
		err = cmdCheck(ctx, cfg)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: criticus <command> [flags]

Commands:
  run      run one batch over the library (default)
  import   import the bulk ratings dataset snapshot
  serve    run supervised with periodic refresh and ops endpoint
  check    verify library and provider connectivity
  help     show this help

Configuration comes from config.yaml and CRITICUS_* environment
variables; see the project README for the full reference.
`)
}
