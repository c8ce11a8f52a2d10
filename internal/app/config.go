package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/nixbisect/internal/action"
	"github.com/vk/nixbisect/internal/derivation"
	"github.com/vk/nixbisect/internal/nix"
)

// Config holds everything one invocation needs: the target, the resolution
// context, the resource limits and the outcome-to-action mapping. It is
// constructed once and passed around explicitly; there is no ambient state.
type Config struct {
	Drvish string // .drv path, attribute or expression
	File   string // nix file providing the resolution context
	Flake  bool   // resolve against a flake instead of a plain file

	Options []nix.Option // passed to every nix invocation
	Argstr  []nix.Option // passed to instantiation only

	FailureLine string // empty means no log confirmation required
	Resources   derivation.ResourceConfig
	Actions     *action.Config

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and returns it. Logging fields are
// normalized here so newLogger only ever sees known values.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Drvish == "" {
		return nil, errors.New("Drvish is a required configuration field and cannot be empty")
	}
	if cfg.Actions == nil {
		return nil, errors.New("Actions is a required configuration field and cannot be nil")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	return &cfg, nil
}
