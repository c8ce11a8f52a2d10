package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vk/nixbisect/internal/ctxlog"
	"github.com/vk/nixbisect/internal/derivation"
	"github.com/vk/nixbisect/internal/nix"
	"github.com/vk/nixbisect/internal/status"
)

// Run resolves the target, determines its build status and returns the
// process exit code the bisection driver should see. The passes never
// overlap: resolution failure is terminal before any evaluation starts.
func (a *App) Run(ctx context.Context) (int, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	drv, err := a.resolveTarget(ctx)
	if err != nil {
		var instErr *nix.InstantiationError
		if errors.As(err, &instErr) {
			fmt.Fprintln(a.outW, instErr.Error())
			return a.report(status.Result{Outcome: status.InstantiationFailure}), nil
		}
		return 0, err
	}
	fmt.Fprintf(a.outW, "Querying status of %q.\n", drv)

	target, err := derivation.New(drv, a.system, a.config.Options, a.config.Resources)
	if err != nil {
		return 0, err
	}

	result, err := status.Evaluate(ctx, target, a.config.FailureLine)
	if err != nil {
		return 0, fmt.Errorf("evaluating %s: %w", drv, err)
	}
	if result.Outcome == status.DependencyFailure {
		fmt.Fprintf(a.outW, "Dependency %s failed to build.\n", result.FailedDependency)
	}

	a.logger.Debug("App.Run method finished.")
	return a.report(result), nil
}

// report prints the computed outcome and maps it to an exit code.
func (a *App) report(result status.Result) int {
	fmt.Fprintf(a.outW, "Build status: %s\n", result.Outcome)
	code := a.config.Actions.ExitCode(result.Outcome)
	a.logger.Info("Outcome mapped to bisect action.", "outcome", result.Outcome.String(), "action", a.config.Actions.Action(result.Outcome).String(), "exit_code", code)
	return code
}

// resolveTarget is a no-op on existing .drv files. Anything else is
// resolved in the context of the configured nix file.
func (a *App) resolveTarget(ctx context.Context) (string, error) {
	if strings.HasSuffix(a.config.Drvish, ".drv") {
		if _, err := os.Stat(a.config.Drvish); err == nil {
			a.logger.Debug("Target is an existing derivation file.", "drv", a.config.Drvish)
			return a.config.Drvish, nil
		}
	}
	return a.system.Instantiate(ctx, a.config.Drvish, a.config.File, a.config.Options, a.config.Argstr, a.config.Flake)
}
