// Command migrator manages the X-Ray database schema. All migration SQL is
// embedded in the binary, so the tool deploys as a single artifact.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("migrator %s (%s)\n", version, commit)

		return
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := LoadMigratorConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	runner, err := NewRunner(cfg, logger)
	if err != nil {
		logger.Error("migration runner startup failed", slog.Any("error", err))
		os.Exit(1)
	}

	defer func() {
		_ = runner.Close()
	}()

	if err := runCommand(flag.Arg(0), runner, os.Stdin); err != nil {
		logger.Error("migration command failed",
			slog.String("command", flag.Arg(0)),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

// runCommand dispatches one CLI command. Drop reads a confirmation from in
// so the destructive path can never be hit by accident.
func runCommand(command string, runner *Runner, in io.Reader) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		if !confirmDrop(in) {
			fmt.Println("drop cancelled")

			return nil
		}

		return runner.Drop()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func confirmDrop(in io.Reader) bool {
	fmt.Print("This drops every table in the database. Type 'yes' to continue: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	return strings.TrimSpace(line) == "yes"
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: migrator [flags] <command>

Commands:
  up       apply all pending migrations
  down     roll back the last applied migration
  status   show applied version, catalog version, and pending count
  version  show the applied schema version
  drop     drop every table (asks for confirmation)

Flags:
  -version  print version and exit

Environment:
  XRAY_DATABASE_URL     PostgreSQL connection string (required)
  XRAY_MIGRATION_TABLE  version tracking table (default: schema_migrations)
`)
}
