package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/bootstrap"
)

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(name string, args []string) (migrateOptions, error) {
	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "maximum time to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Timeout <= 0 {
		return opts, fmt.Errorf("timeout must be greater than zero (got %s)", opts.Timeout)
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags("migrate", args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	dbCfg := cmdCtx.Config.Postgres
	dbCfg.RunMigrationsOnStart = false
	db, err := bootstrap.ConnectDB(ctx, dbCfg, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")
	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runMigrationStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags("migrate-status", args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	dbCfg := cmdCtx.Config.Postgres
	dbCfg.RunMigrationsOnStart = false
	db, err := bootstrap.ConnectDB(ctx, dbCfg, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	pending, err := bootstrap.PendingMigrations(ctx, db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return writeln(cmdCtx.Out, "Database is up to date")
	}
	if err := writef(cmdCtx.Out, "Pending migrations (%d):\n", len(pending)); err != nil {
		return err
	}
	for _, name := range pending {
		if err := writef(cmdCtx.Out, "  %s\n", name); err != nil {
			return err
		}
	}
	return nil
}
