package status

import "fmt"

// Outcome is the final verdict of one status evaluation. The enumeration is
// closed; every invocation produces exactly one value and it is terminal.
type Outcome int

const (
	// Success means the target and all of its dependencies build.
	Success Outcome = iota
	// Failure means the target itself fails to build, confirmed by the
	// failure line when one is configured.
	Failure
	// FailureWithoutLine means the target fails to build but its log does
	// not contain the configured failure line, so the failure may be
	// unrelated to the regression being bisected.
	FailureWithoutLine
	// DependencyFailure means a required input is broken, independent of
	// the target's own correctness.
	DependencyFailure
	// InstantiationFailure means the target identifier could not be
	// resolved to a derivation at all.
	InstantiationFailure
	// ResourceLimit means the rebuild budget or the rebuild blacklist would
	// have been violated; the evaluation is inconclusive, not evidence of a
	// regression.
	ResourceLimit
)

// Outcomes lists every member of the enumeration, in a fixed order. Used to
// validate that action configuration is total.
func Outcomes() []Outcome {
	return []Outcome{
		Success,
		Failure,
		FailureWithoutLine,
		DependencyFailure,
		InstantiationFailure,
		ResourceLimit,
	}
}

var outcomeNames = map[Outcome]string{
	Success:              "success",
	Failure:              "failure",
	FailureWithoutLine:   "failure_without_line",
	DependencyFailure:    "dependency_failure",
	InstantiationFailure: "instantiation_failure",
	ResourceLimit:        "resource_limit",
}

// String returns the wire name of the outcome, as printed to the bisection
// driver.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Parse resolves an outcome wire name back to its enumeration value.
func Parse(name string) (Outcome, error) {
	for outcome, n := range outcomeNames {
		if n == name {
			return outcome, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", name)
}
