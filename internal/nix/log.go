package nix

import (
	"context"
	"fmt"
)

// Log returns the build log of a store path. The boolean reports whether a
// log was available; a missing log is not an error.
func (c *Client) Log(ctx context.Context, drv string) (string, bool, error) {
	out, err := c.runner.Run(ctx, "nix", "log", drv)
	if err != nil {
		return "", false, fmt.Errorf("running nix log: %w", err)
	}
	if out.ExitCode != 0 {
		return "", false, nil
	}
	return out.Stdout, true, nil
}
