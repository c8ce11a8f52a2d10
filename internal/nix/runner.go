package nix

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Option is a single `--option name value` pair passed through to the nix
// tooling on every invocation.
type Option struct {
	Name  string
	Value string
}

// Output is the captured result of one external command invocation.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes one external command and returns its captured output. A
// non-zero exit status is reported through Output.ExitCode, not as an error;
// the error return is reserved for failures to run the command at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// execRunner is the production Runner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}

// Client executes nix tooling commands through a Runner.
type Client struct {
	runner Runner
}

// NewClient creates a client that shells out to the real nix tooling.
func NewClient() *Client {
	return &Client{runner: execRunner{}}
}

// NewClientWithRunner creates a client backed by a custom Runner. Used by
// tests to script tool behaviour without a store.
func NewClientWithRunner(r Runner) *Client {
	return &Client{runner: r}
}

// optionFlags renders options as `--option name value` argument triples.
func optionFlags(options []Option) []string {
	args := make([]string, 0, len(options)*3)
	for _, opt := range options {
		args = append(args, "--option", opt.Name, opt.Value)
	}
	return args
}
