package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/nixbisect/internal/derivation"
	"github.com/vk/nixbisect/internal/nix"
)

// BuildSystem is everything the application needs from the nix tooling:
// target resolution plus the store operations the evaluator performs. It is
// satisfied by *nix.Client; tests substitute a scripted implementation.
type BuildSystem interface {
	Instantiate(ctx context.Context, attr, file string, options, argstr []nix.Option, flake bool) (string, error)
	derivation.Store
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	system BuildSystem
	config *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Human-readable
// status lines go to outW; logs go to errW so the stdout protocol consumed
// by the bisection driver stays clean.
func NewApp(outW, errW io.Writer, config *Config, system BuildSystem) (*App, error) {
	logger, err := newLogger(config.LogLevel, config.LogFormat, errW)
	if err != nil {
		return nil, err
	}
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:   outW,
		logger: logger,
		system: system,
		config: config,
	}, nil
}
