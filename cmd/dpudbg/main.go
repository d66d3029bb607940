package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/dpudbg/internal/app"
	"github.com/specialistvlad/dpudbg/internal/cli"
	"github.com/specialistvlad/dpudbg/internal/hcl"
)

// main is the entrypoint for the dpudbg daemon.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dpuApp *app.App
	func() {
		// The app panics on critical config errors.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("application startup panicked: %v", r)
			}
		}()
		dpuApp = app.NewApp(outW, appConfig, hcl.NewLoader())
	}()
	if err != nil {
		return err
	}

	return dpuApp.Run(ctx)
}
