package nix

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/nixbisect/internal/ctxlog"
)

// InstantiationError reports that an attribute or expression could not be
// resolved to a concrete derivation.
type InstantiationError struct {
	Output string
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiation failed: %s", strings.TrimSpace(e.Output))
}

// Instantiate resolves an attribute or expression to a derivation path in
// the context of a nix file.
//
// In the default mode arbitrary nix expressions are accepted. The file (or
// the current working directory by default) is brought into scope, i.e. the
// expression is implicitly prefixed by `with (import file {argstr...});`,
// which allows for overrides. In flake mode the attribute is resolved
// against the flake reference instead.
func (c *Client) Instantiate(ctx context.Context, attr, file string, options, argstr []Option, flake bool) (string, error) {
	logger := ctxlog.FromContext(ctx)

	var command []string
	if flake {
		command = append([]string{"nix", "path-info", "--derivation"}, optionFlags(options)...)
		command = append(command, fmt.Sprintf("%s#%s", file, attr))
	} else {
		absFile, err := filepath.Abs(file)
		if err != nil {
			return "", fmt.Errorf("resolving nix file path: %w", err)
		}

		// Simulate --argstr support since the file is imported manually to
		// allow for arbitrary nix expressions.
		var callArgs strings.Builder
		for _, arg := range argstr {
			fmt.Fprintf(&callArgs, "%s = %q; ", arg.Name, arg.Value)
		}
		expr := fmt.Sprintf("with (import %s {%s}); %s", absFile, strings.TrimSpace(callArgs.String()), attr)

		command = append([]string{"nix-instantiate", "-E", expr}, optionFlags(options)...)
	}

	logger.Debug("Instantiating target.", "attr", attr, "file", file, "flake", flake)
	out, err := c.runner.Run(ctx, command[0], command[1:]...)
	if err != nil {
		return "", fmt.Errorf("running %s: %w", command[0], err)
	}
	if out.ExitCode != 0 {
		return "", &InstantiationError{Output: out.Stderr}
	}

	drv := strings.TrimSpace(out.Stdout)
	// Instantiation of a single attribute yields a single derivation path;
	// keep only the first line in case the tool chatters.
	if i := strings.IndexByte(drv, '\n'); i >= 0 {
		drv = strings.TrimSpace(drv[:i])
	}
	logger.Debug("Instantiation complete.", "drv", drv)
	return drv, nil
}
