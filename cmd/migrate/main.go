// Package main is the schema migration CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/migration"
	"stockledger/pkg/logger"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: *logLevel, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	m, err := migration.New(cfg.Database.URL, log.Desugar())
	if err != nil {
		log.Fatalw("failed to create migrator", "error", err)
	}
	defer func() { _ = m.Close() }()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		n, convErr := intArg(args, "steps")
		if convErr != nil {
			log.Fatalw("invalid step count", "error", convErr)
		}
		err = m.Steps(n)
	case "force":
		v, convErr := intArg(args, "force")
		if convErr != nil {
			log.Fatalw("invalid version", "error", convErr)
		}
		err = m.Force(v)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalw("failed to get version", "error", verr)
		}
		log.Infow("current migration version", "version", version, "dirty", dirty)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalw("migration failed", "command", command, "error", err)
	}
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: migrate %s <n>", command)
	}
	return strconv.Atoi(args[1])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up            apply all pending migrations
  down          roll back all migrations
  steps <n>     apply (n>0) or roll back (n<0) n migrations
  force <v>     set the version without running migrations (clears dirty state)
  version       print the current version

Configuration is read from config.yaml and STOCK_* environment variables.`)
}
