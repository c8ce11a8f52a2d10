package nix

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vk/nixbisect/internal/ctxlog"
)

// Patterns matched against the error output of a failed realisation to
// attribute the failure to specific derivations.
var (
	cannotBuildPat   = regexp.MustCompile(`cannot build derivation '([^']+)': (.+)`)
	buildFailedPat   = regexp.MustCompile(`build of ('[^']+'(?:, '[^']+')*) failed`)
	builderFailedPat = regexp.MustCompile(`builder for '([^']+)' failed with exit code (\d+);`)
	buildTimeoutPat  = regexp.MustCompile(`building of '([^']+)' timed out after`)
)

// BuildError reports a failed realisation. Failed holds every derivation
// the builder output blamed, sorted; there is always at least one.
type BuildError struct {
	Failed []string
	Output string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of %s failed", strings.Join(e.Failed, ", "))
}

// Realise builds (or fetches) a store path and returns the resulting output
// paths. A build failure is returned as a *BuildError carrying the blamed
// derivations; other errors indicate the tool could not be run at all.
func (c *Client) Realise(ctx context.Context, drv string, options []Option) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Realising store path.", "drv", drv)

	args := append([]string{"--realise"}, optionFlags(options)...)
	args = append(args, drv)

	out, err := c.runner.Run(ctx, "nix-store", args...)
	if err != nil {
		return nil, fmt.Errorf("running nix-store: %w", err)
	}
	if out.ExitCode != 0 {
		failed := blamedDerivations(out.Stderr)
		if len(failed) == 0 {
			// The output did not name a culprit; blame the requested path.
			failed = []string{drv}
		}
		logger.Debug("Realisation failed.", "drv", drv, "blamed", failed)
		return nil, &BuildError{Failed: failed, Output: out.Stderr}
	}

	var storePaths []string
	for _, line := range strings.Split(out.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			storePaths = append(storePaths, line)
		}
	}
	logger.Debug("Realisation succeeded.", "drv", drv, "outputs", len(storePaths))
	return storePaths, nil
}

// blamedDerivations extracts the set of derivations a failed build's output
// holds responsible, deduplicated and sorted for reproducibility.
func blamedDerivations(output string) []string {
	seen := make(map[string]struct{})

	for _, m := range cannotBuildPat.FindAllStringSubmatch(output, -1) {
		seen[m[1]] = struct{}{}
	}
	for _, m := range buildFailedPat.FindAllStringSubmatch(output, -1) {
		for _, quoted := range strings.Split(m[1], ", ") {
			seen[strings.Trim(quoted, "'")] = struct{}{}
		}
	}
	for _, m := range builderFailedPat.FindAllStringSubmatch(output, -1) {
		seen[m[1]] = struct{}{}
	}
	for _, m := range buildTimeoutPat.FindAllStringSubmatch(output, -1) {
		seen[m[1]] = struct{}{}
	}

	failed := make([]string, 0, len(seen))
	for drv := range seen {
		failed = append(failed, drv)
	}
	sort.Strings(failed)
	return failed
}
