package action

import (
	"fmt"
	"strconv"

	"github.com/vk/nixbisect/internal/status"
)

// Exit codes of the named bisect actions. AbortExitCode is also what the
// orchestration layer signals when it cannot run at all, e.g. on an
// argument parsing failure.
const (
	GoodExitCode      = 0
	BadExitCode       = 1
	SkipExitCode      = 125
	AbortExitCode     = 128
	SkipRangeExitCode = 129
)

// The named tokens a user may map an outcome to. Abort is deliberately not
// among them: it is reserved for the cannot-run path, not for outcomes.
var namedExitCodes = map[string]int{
	"good":       GoodExitCode,
	"bad":        BadExitCode,
	"skip":       SkipExitCode,
	"skip-range": SkipRangeExitCode,
}

// Action is what the driver should be told after an evaluation: either one
// of the named bisect actions or a raw exit code.
type Action struct {
	name string // empty for a raw exit code
	code int
}

// Named returns the action for a named token. It panics on unknown names
// and is intended for wiring defaults; user input goes through Parse.
func Named(name string) Action {
	code, ok := namedExitCodes[name]
	if !ok {
		panic(fmt.Sprintf("action: unknown named action %q", name))
	}
	return Action{name: name, code: code}
}

// Code returns an action that exits with an arbitrary raw exit code.
func Code(code int) Action {
	return Action{code: code}
}

// Parse resolves an action token: one of the named actions, or any
// non-negative integer taken as a raw exit code.
func Parse(token string) (Action, error) {
	if code, ok := namedExitCodes[token]; ok {
		return Action{name: token, code: code}, nil
	}
	code, err := strconv.Atoi(token)
	if err != nil {
		return Action{}, fmt.Errorf("unknown action %q, want good|bad|skip|skip-range or an exit code", token)
	}
	if code < 0 {
		return Action{}, fmt.Errorf("exit code %d out of range, must be non-negative", code)
	}
	return Action{code: code}, nil
}

// ExitCode returns the process exit code this action maps to.
func (a Action) ExitCode() int {
	return a.code
}

// String returns the named token, or the raw exit code in decimal.
func (a Action) String() string {
	if a.name != "" {
		return a.name
	}
	return strconv.Itoa(a.code)
}

// Config is a total mapping from every outcome to an action.
type Config struct {
	byOutcome map[status.Outcome]Action
}

// NewConfig validates that the mapping covers the entire outcome
// enumeration and returns the resulting configuration.
func NewConfig(byOutcome map[status.Outcome]Action) (*Config, error) {
	for _, outcome := range status.Outcomes() {
		if _, ok := byOutcome[outcome]; !ok {
			return nil, fmt.Errorf("action config incomplete: no action for outcome %q", outcome)
		}
	}

	cfg := &Config{byOutcome: make(map[status.Outcome]Action, len(byOutcome))}
	for outcome, act := range byOutcome {
		cfg.byOutcome[outcome] = act
	}
	return cfg, nil
}

// Defaults returns the stock mapping: a clean build is good, a confirmed
// failure is bad, everything inconclusive skips.
func Defaults() map[status.Outcome]Action {
	return map[status.Outcome]Action{
		status.Success:              Named("good"),
		status.Failure:              Named("bad"),
		status.FailureWithoutLine:   Named("skip-range"),
		status.DependencyFailure:    Named("skip-range"),
		status.InstantiationFailure: Named("skip-range"),
		status.ResourceLimit:        Named("skip"),
	}
}

// ExitCode maps an outcome to its configured process exit code. The config
// is total by construction, so every outcome resolves.
func (c *Config) ExitCode(outcome status.Outcome) int {
	return c.byOutcome[outcome].ExitCode()
}

// Action returns the configured action for an outcome.
func (c *Config) Action(outcome status.Outcome) Action {
	return c.byOutcome[outcome]
}
