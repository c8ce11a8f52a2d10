package nix

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/nixbisect/internal/ctxlog"
)

// BuildDry reports what realising drvs would do, without doing it. It
// returns the store paths that would be built locally and those that would
// be fetched from a substituter. Paths already present in the store appear
// in neither list.
func (c *Client) BuildDry(ctx context.Context, drvs []string, options []Option) (toBuild, toFetch []string, err error) {
	logger := ctxlog.FromContext(ctx)

	args := append([]string{"--realise", "--dry-run"}, optionFlags(options)...)
	args = append(args, drvs...)

	out, err := c.runner.Run(ctx, "nix-store", args...)
	if err != nil {
		return nil, nil, fmt.Errorf("running nix-store: %w", err)
	}
	if out.ExitCode != 0 {
		return nil, nil, fmt.Errorf("nix-store --dry-run failed: %s", strings.TrimSpace(out.Stderr))
	}

	// The dry-run report arrives on stderr as two sections of store paths,
	// each introduced by a "will be built" / "will be fetched" header.
	var current *[]string
	for _, line := range strings.Split(out.Stderr, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.Contains(line, "will be built"):
			current = &toBuild
		case strings.Contains(line, "will be fetched"):
			current = &toFetch
		case strings.HasPrefix(line, "/nix/store"):
			if current == nil {
				return nil, nil, fmt.Errorf("dry-run parsing failed, path outside any section: %q", line)
			}
			*current = append(*current, line)
		case strings.HasPrefix(line, "warning:"):
			logger.Warn("Dry-run warning.", "line", line)
		default:
			return nil, nil, fmt.Errorf("dry-run parsing failed, line was: %q", line)
		}
	}

	logger.Debug("Dry-run complete.", "to_build", len(toBuild), "to_fetch", len(toFetch))
	return toBuild, toFetch, nil
}

// References returns the immediate dependencies of drvs, in the order the
// store reports them.
func (c *Client) References(ctx context.Context, drvs []string) ([]string, error) {
	args := append([]string{"--query", "--references"}, drvs...)

	out, err := c.runner.Run(ctx, "nix-store", args...)
	if err != nil {
		return nil, fmt.Errorf("running nix-store: %w", err)
	}
	if out.ExitCode != 0 {
		return nil, fmt.Errorf("nix-store --query --references failed: %s", strings.TrimSpace(out.Stderr))
	}

	var refs []string
	for _, line := range strings.Split(out.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}
