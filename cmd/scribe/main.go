package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/config"
	"github.com/alungalsinan/groot-scribe-studio/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	// Deps are handed to bootstrap.NewApp; tests inject Redis here.
	Deps  bootstrap.AppDeps
	Out   io.Writer
	Stdin io.Reader
}

const (
	defaultCommandTimeout   = 30 * time.Second
	defaultMigrationTimeout = 5 * time.Minute
)

func main() {
	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			slog.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger := bootstrap.InitLogger(cfg)

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		Stdin:  os.Stdin,
	}
	os.Exit(dispatch(cmdCtx, os.Args[1], os.Args[2:])) //nolint:forbidigo // exit status reflects the command outcome
}

// dispatch runs the named command and returns the process exit status.
func dispatch(cmdCtx *commandContext, name string, args []string) int {
	cmd, ok := commands()[name]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", name); err != nil {
			cmdCtx.Logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(cmdCtx.Out); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}
	if err := cmd.run(cmdCtx, args); err != nil {
		cmdCtx.Logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", name, "error", err)
		return 1
	}
	return 0
}

func commands() map[string]command {
	return map[string]command{
		"whoami": {
			name:        "whoami",
			description: "Restore the persisted session and print identity, profile and role",
			run:         runWhoAmI,
		},
		"sign-in": {
			name:        "sign-in",
			description: "Sign in with email and password",
			run:         runSignIn,
		},
		"sign-up": {
			name:        "sign-up",
			description: "Register a new account",
			run:         runSignUp,
		},
		"sign-out": {
			name:        "sign-out",
			description: "End the current session",
			run:         runSignOut,
		},
		"refresh": {
			name:        "refresh",
			description: "Refresh the session and re-resolve profile and role",
			run:         runRefresh,
		},
		"watch": {
			name:        "watch",
			description: "Print every state change until interrupted",
			run:         runWatch,
		},
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"migrate-status": {
			name:        "migrate-status",
			description: "List migrations that have not been applied",
			run:         runMigrationStatus,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: scribe <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
