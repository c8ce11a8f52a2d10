package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/nixbisect/internal/app"
	"github.com/vk/nixbisect/internal/cli"
	"github.com/vk/nixbisect/internal/nix"
)

// main is the entrypoint for the nixbisect application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	code, err := run(os.Stdout, os.Stderr, os.Args[1:])
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(code)
}

// run encapsulates the main application logic for easier testing and error
// handling. It returns the exit code for the bisection driver.
func run(outW, errW io.Writer, args []string) (int, error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return 0, err
	}
	if shouldExit {
		return 0, nil
	}

	nixbisectApp, err := app.NewApp(outW, errW, appConfig, nix.NewClient())
	if err != nil {
		return 0, err
	}
	return nixbisectApp.Run(context.Background())
}
