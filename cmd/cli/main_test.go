package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/nixbisect/internal/cli"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	// The run function should see `shouldExit=true` and return a zero exit code.
	code, err := run(out, &bytes.Buffer{}, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseErrorSignalsAbort(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag", "hello"}
	out := &bytes.Buffer{}

	// --- Act ---
	// The run function should propagate the error from cli.Parse.
	_, err := run(out, &bytes.Buffer{}, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")

	// The bisection driver distinguishes "cannot run at all" from any
	// computed outcome by the abort exit code.
	exitErr, ok := err.(*cli.ExitError)
	require.True(t, ok, "expected a *cli.ExitError, got %T", err)
	require.Equal(t, 128, exitErr.Code)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_MissingTargetSignalsAbort(t *testing.T) {
	t.Parallel()

	_, err := run(&bytes.Buffer{}, &bytes.Buffer{}, []string{})
	require.Error(t, err)

	exitErr, ok := err.(*cli.ExitError)
	require.True(t, ok, "expected a *cli.ExitError, got %T", err)
	require.Equal(t, 128, exitErr.Code)
}
