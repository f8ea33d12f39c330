package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/bootstrap"
	"github.com/alungalsinan/groot-scribe-studio/internal/domain/auth"
	"github.com/alungalsinan/groot-scribe-studio/internal/service"
)

// passwordEnv lets scripts pass a password without exposing it in argv.
const passwordEnv = "SCRIBE_PASSWORD"

type outputOptions struct {
	JSON    bool
	Timeout time.Duration
}

func (o *outputOptions) register(fs *flag.FlagSet) {
	fs.BoolVar(&o.JSON, "json", false, "print the snapshot as JSON")
	fs.DurationVar(&o.Timeout, "timeout", defaultCommandTimeout, "maximum time to wait for the backend")
}

type credentialOptions struct {
	outputOptions
	Email    string
	Password string
	Name     string
}

func parseCredentialFlags(name string, args []string, withName bool) (credentialOptions, error) {
	var opts credentialOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts.register(fs)
	fs.StringVar(&opts.Email, "email", "", "account email")
	fs.StringVar(&opts.Password, "password", "", "account password (or set "+passwordEnv+")")
	if withName {
		fs.StringVar(&opts.Name, "name", "", "display name")
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return opts, errors.New("-email is required")
	}
	return opts, nil
}

// resolvePassword takes the password from the flag, then the environment, then
// the first line of stdin.
func resolvePassword(cmdCtx *commandContext, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(passwordEnv); v != "" {
		return v, nil
	}
	if cmdCtx.Stdin == nil {
		return "", errors.New("password is required")
	}
	if err := writef(os.Stderr, "Password: "); err != nil {
		return "", fmt.Errorf("print password prompt: %w", err)
	}
	line, err := bufio.NewReader(cmdCtx.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

// openApp builds the application and restores the persisted session.
func openApp(ctx context.Context, cmdCtx *commandContext) (*bootstrap.App, error) {
	app, err := bootstrap.NewApp(ctx, cmdCtx.Config, cmdCtx.Logger, cmdCtx.Deps)
	if err != nil {
		return nil, err
	}
	if initErr := app.Coordinator.Initialize(ctx); initErr != nil {
		return nil, errors.Join(fmt.Errorf("initialize session: %w", initErr), app.Close())
	}
	return app, nil
}

func closeApp(cmdCtx *commandContext, app *bootstrap.App) {
	if err := app.Close(); err != nil {
		cmdCtx.Logger.Warn("close app failed", "error", err)
	}
}

// waitSettled blocks until the coordinator has no work in flight.
func waitSettled(ctx context.Context, coord *service.Coordinator) (auth.Snapshot, error) {
	updates := make(chan auth.Snapshot, 1)
	unsubscribe := coord.Subscribe(func(s auth.Snapshot) {
		select {
		case <-updates:
		default:
		}
		updates <- s
	})
	defer unsubscribe()

	if snap := coord.Snapshot(); !snap.Loading {
		return snap, nil
	}
	for {
		select {
		case snap := <-updates:
			if !snap.Loading {
				return snap, nil
			}
		case <-ctx.Done():
			return coord.Snapshot(), fmt.Errorf("wait for session: %w", ctx.Err())
		}
	}
}

func runWhoAmI(cmdCtx *commandContext, args []string) error {
	var opts outputOptions
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(cmdCtx, opts, func(ctx context.Context, app *bootstrap.App) error {
		return nil
	})
}

func runSignIn(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("sign-in", args, false)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmdCtx, opts.Password)
	if err != nil {
		return err
	}

	return withApp(cmdCtx, opts.outputOptions, func(ctx context.Context, app *bootstrap.App) error {
		if signInErr := app.Coordinator.SignIn(ctx, opts.Email, password); signInErr != nil {
			return fmt.Errorf("sign in: %w", signInErr)
		}
		return nil
	})
}

func runSignUp(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("sign-up", args, true)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmdCtx, opts.Password)
	if err != nil {
		return err
	}

	return withApp(cmdCtx, opts.outputOptions, func(ctx context.Context, app *bootstrap.App) error {
		if signUpErr := app.Coordinator.SignUp(ctx, opts.Email, password, opts.Name); signUpErr != nil {
			return fmt.Errorf("sign up: %w", signUpErr)
		}
		return writeln(cmdCtx.Out, "Account created. Check your email to verify the account.")
	})
}

func runSignOut(cmdCtx *commandContext, args []string) error {
	var opts outputOptions
	fs := flag.NewFlagSet("sign-out", flag.ContinueOnError)
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(cmdCtx, opts, func(ctx context.Context, app *bootstrap.App) error {
		if !app.Coordinator.Snapshot().Authenticated() {
			return nil
		}
		if signOutErr := app.Coordinator.SignOut(ctx); signOutErr != nil {
			return fmt.Errorf("sign out: %w", signOutErr)
		}
		return nil
	})
}

func runRefresh(cmdCtx *commandContext, args []string) error {
	var opts outputOptions
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(cmdCtx, opts, func(ctx context.Context, app *bootstrap.App) error {
		if !app.Coordinator.Snapshot().Authenticated() {
			return errors.New("not signed in")
		}
		if refresher, ok := app.Refresher(); ok {
			if err := refresher.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh session: %w", err)
			}
		}
		if _, err := waitSettled(ctx, app.Coordinator); err != nil {
			return err
		}
		return app.Coordinator.RefreshUserData(ctx)
	})
}

// withApp opens the app, runs fn, waits for the state to settle and prints it.
func withApp(cmdCtx *commandContext, opts outputOptions, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	app, err := openApp(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer closeApp(cmdCtx, app)

	if runErr := fn(ctx, app); runErr != nil {
		return runErr
	}

	snap, err := waitSettled(ctx, app.Coordinator)
	if err != nil {
		return err
	}
	return printSnapshot(cmdCtx.Out, snap, opts.JSON)
}

func runWatch(cmdCtx *commandContext, args []string) error {
	var opts outputOptions
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.BoolVar(&opts.JSON, "json", false, "print snapshots as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cmdCtx.Config, cmdCtx.Logger, cmdCtx.Deps)
	if err != nil {
		return err
	}
	defer closeApp(cmdCtx, app)

	unsubscribe := app.Coordinator.Subscribe(func(s auth.Snapshot) {
		if printErr := printWatchLine(cmdCtx.Out, s, opts.JSON); printErr != nil {
			cmdCtx.Logger.Warn("print snapshot failed", "error", printErr)
		}
	})
	defer unsubscribe()

	if initErr := app.Coordinator.Initialize(ctx); initErr != nil {
		return fmt.Errorf("initialize session: %w", initErr)
	}

	<-ctx.Done()
	cmdCtx.Logger.Info("watch stopped")
	return nil
}

func printWatchLine(w io.Writer, s auth.Snapshot, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(s)
	}
	return writef(w, "%s user=%q role=%q loading=%t initialized=%t error=%q\n",
		time.Now().UTC().Format(time.RFC3339), s.UserID(), roleLabel(s), s.Loading, s.Initialized, s.Error)
}

func printSnapshot(w io.Writer, s auth.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	if !s.Authenticated() {
		if err := writeln(w, "Not signed in"); err != nil {
			return err
		}
		return printSnapshotError(w, s)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"User", s.Identity.ID},
		{"Email", s.Identity.Email},
		{"Role", roleLabel(s)},
	}
	if s.Profile != nil {
		rows = append(rows, [2]string{"Name", s.Profile.Name})
		if s.Profile.LastLogin != nil {
			rows = append(rows, [2]string{"Last login", s.Profile.LastLogin.UTC().Format(time.RFC3339)})
		}
	}
	if s.Session != nil && !s.Session.ExpiresAt.IsZero() {
		rows = append(rows, [2]string{"Expires", s.Session.ExpiresAt.UTC().Format(time.RFC3339)})
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("print snapshot: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return printSnapshotError(w, s)
}

func printSnapshotError(w io.Writer, s auth.Snapshot) error {
	if s.Error == "" {
		return nil
	}
	return writef(w, "Error: %s\n", s.Error)
}

func roleLabel(s auth.Snapshot) string {
	if s.Role == nil {
		return ""
	}
	return string(*s.Role)
}
