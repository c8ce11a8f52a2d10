package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/nixbisect/internal/action"
	"github.com/vk/nixbisect/internal/app"
	"github.com/vk/nixbisect/internal/derivation"
	"github.com/vk/nixbisect/internal/hclconf"
	"github.com/vk/nixbisect/internal/nix"
	"github.com/vk/nixbisect/internal/status"
)

// ExitError is a custom error type that includes a specific exit code. A
// failure to parse arguments at all carries the abort exit code, so the
// bisection driver can tell "cannot run" apart from any computed outcome.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func abortf(format string, args ...any) *ExitError {
	return &ExitError{Code: action.AbortExitCode, Message: fmt.Sprintf(format, args...)}
}

// pairList collects repeatable `name=value` flags as nix options.
type pairList []nix.Option

func (p *pairList) String() string {
	parts := make([]string, 0, len(*p))
	for _, opt := range *p {
		parts = append(parts, opt.Name+"="+opt.Value)
	}
	return strings.Join(parts, ",")
}

func (p *pairList) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	*p = append(*p, nix.Option{Name: name, Value: value})
	return nil
}

// normalizeArgs rewrites the two-token forms `--option name value` and
// `--argstr name value` into the single-token name=value form the flag
// package can consume. A value that already contains '=' is left alone, so
// both spellings work.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-option", "--option", "-argstr", "--argstr":
			if i+2 < len(args) && !strings.Contains(args[i+1], "=") {
				out = append(out, args[i], args[i+1]+"="+args[i+2])
				i += 2
				continue
			}
		}
		out = append(out, args[i])
	}
	return out
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(raw string) error {
	*s = append(*s, raw)
	return nil
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("nixbisect", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
nixbisect - determine the build status of a nix target, suitable for git-bisect.

Usage:
  nixbisect [options] DRVISH

Arguments:
  DRVISH
    A .drv path, or an attribute/expression resolvable in the context of
    the nix file.

Options:
`)
		flagSet.PrintDefaults()
	}

	fileFlag := flagSet.String("file", "", "Nix file that contains the attribute. Defaults to the current directory.")
	fFlag := flagSet.String("f", "", "Nix file that contains the attribute (shorthand).")
	configFlag := flagSet.String("config", "", "Optional HCL run configuration file.")
	maxRebuildsFlag := flagSet.Int("max-rebuilds", -1, "Number of rebuilds to allow. Negative means unlimited.")
	failureLineFlag := flagSet.String("failure-line", "", "Line required in the build log to count as a failure.")
	flakeFlag := flagSet.Bool("flake", false, "Resolve the attribute against a flake rather than a plain nix file.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	var options, argstr pairList
	flagSet.Var(&options, "option", "Set a nix configuration option, as 'name value' or name=value. Repeatable.")
	flagSet.Var(&argstr, "argstr", "Pass an argument on to instantiation, as 'name value' or name=value. Repeatable.")

	var blacklist stringList
	flagSet.Var(&blacklist, "rebuild-blacklist", "Skip the evaluation if a derivation matching this regex needs to be rebuilt. Repeatable.")

	onFlags := map[status.Outcome]*string{
		status.Success:              flagSet.String("on-success", "", "Bisect action if the target builds successfully."),
		status.Failure:              flagSet.String("on-failure", "", "Bisect action if the target fails to build."),
		status.DependencyFailure:    flagSet.String("on-dependency-failure", "", "Bisect action if a dependency fails to build."),
		status.FailureWithoutLine:   flagSet.String("on-failure-without-line", "", "Bisect action if the build fails without the failure line."),
		status.InstantiationFailure: flagSet.String("on-instantiation-failure", "", "Bisect action if the target cannot be instantiated."),
		status.ResourceLimit:        flagSet.String("on-resource-limit", "", "Bisect action if a resource limit like the rebuild count is exceeded."),
	}

	if err := flagSet.Parse(normalizeArgs(args)); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, abortf("%s", err.Error())
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, false, abortf("missing required DRVISH argument")
	}
	if flagSet.NArg() > 1 {
		return nil, false, abortf("unexpected extra arguments: %s", strings.Join(flagSet.Args()[1:], " "))
	}
	drvish := flagSet.Arg(0)

	// Start from the stock configuration, layer the config file on top of
	// it, then let explicitly set flags win.
	actions := action.Defaults()
	resources := derivation.ResourceConfig{}
	failureLine := ""

	if *configFlag != "" {
		runCfg, err := hclconf.Load(context.Background(), *configFlag)
		if err != nil {
			return nil, false, abortf("%s", err.Error())
		}
		resources.MaxRebuilds = runCfg.MaxRebuilds
		resources.RebuildBlacklist = runCfg.RebuildBlacklist
		if runCfg.FailureLine != nil {
			failureLine = *runCfg.FailureLine
		}
		for outcome, act := range runCfg.Actions {
			actions[outcome] = act
		}
		options = append(pairList(runCfg.Options), options...)
		argstr = append(pairList(runCfg.Argstr), argstr...)
	}

	setFlags := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if setFlags["max-rebuilds"] {
		if *maxRebuildsFlag >= 0 {
			limit := *maxRebuildsFlag
			resources.MaxRebuilds = &limit
		} else {
			resources.MaxRebuilds = nil
		}
	}
	if setFlags["failure-line"] {
		failureLine = *failureLineFlag
	}
	if len(blacklist) > 0 {
		resources.RebuildBlacklist = append(resources.RebuildBlacklist, blacklist...)
	}
	for outcome, value := range onFlags {
		if *value == "" {
			continue
		}
		act, err := action.Parse(*value)
		if err != nil {
			return nil, false, abortf("--on-%s: %s", strings.ReplaceAll(outcome.String(), "_", "-"), err.Error())
		}
		actions[outcome] = act
	}

	actionConfig, err := action.NewConfig(actions)
	if err != nil {
		return nil, false, abortf("%s", err.Error())
	}

	file := "."
	if *fFlag != "" {
		file = *fFlag
	}
	if *fileFlag != "" {
		file = *fileFlag
	}

	config, err := app.NewConfig(app.Config{
		Drvish:      drvish,
		File:        file,
		Flake:       *flakeFlag,
		Options:     options,
		Argstr:      argstr,
		FailureLine: failureLine,
		Resources:   resources,
		Actions:     actionConfig,
		LogFormat:   *logFormatFlag,
		LogLevel:    *logLevelFlag,
	})
	if err != nil {
		return nil, false, abortf("%s", err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "drvish", drvish)
	return config, false, nil
}
