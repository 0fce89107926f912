package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/go-authgate/api-client/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// commandFunc is the body of a subcommand. Command output goes to out;
// progress goes through a.display.
type commandFunc func(ctx context.Context, a *app, out io.Writer) error

// run loads configuration, picks a displayer and runs fn against a wired app.
func run(cmd *cobra.Command, fn commandFunc) error {
	errOut := cmd.ErrOrStderr()

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return err
	}

	// Warn if using HTTP instead of HTTPS
	if cfg.plaintext() {
		fmt.Fprintln(errOut, "⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!")
		fmt.Fprintln(errOut, "⚠️  This is only safe for local development. Use HTTPS in production.")
		fmt.Fprintln(errOut)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := isTTY() && errOut == os.Stderr

	logOut := errOut
	if interactive {
		logOut = io.Discard
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(logOut, cfg.LogLevel, cfg.LogFormat)

	if !interactive {
		return execute(ctx, cmd, cfg, logger, tui.NewPlainDisplayer(errOut), fn)
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	m := tui.NewModel()
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	runErr := execute(ctx, cmd, cfg, logger, tui.NewProgramDisplayer(p), fn)
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()
	return runErr
}

func execute(
	ctx context.Context,
	cmd *cobra.Command,
	cfg Config,
	logger *slog.Logger,
	d tui.Displayer,
	fn commandFunc,
) error {
	a, err := newApp(cfg, logger, d)
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer a.Close()

	d.Banner(cfg.ServerURL)
	if err := fn(ctx, a, cmd.OutOrStdout()); err != nil {
		d.Fatal(err)
		return err
	}
	return nil
}
