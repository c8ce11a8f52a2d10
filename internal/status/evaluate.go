package status

import (
	"context"
	"errors"

	"github.com/vk/nixbisect/internal/ctxlog"
	"github.com/vk/nixbisect/internal/derivation"
)

// Target is the evaluator's view of a derivation under test. It is
// satisfied by *derivation.Derivation.
type Target interface {
	CanBuildDeps(ctx context.Context) (bool, error)
	SampleDependencyFailure() string
	CanBuild(ctx context.Context) (bool, error)
	LogContains(ctx context.Context, phrase string) (bool, error)
}

// Result carries the outcome of one evaluation plus, for a dependency
// failure, the store path of the failing dependency.
type Result struct {
	Outcome          Outcome
	FailedDependency string
}

// Evaluate determines the build status of a target. The passes run in
// strict order and each one short-circuits the next: the dependency pass
// first, then the target build, then log inspection. An empty failureLine
// means no log confirmation is required. A resource-limit condition raised
// in either pass terminates the evaluation immediately with ResourceLimit;
// it is never conflated with a dependency failure.
func Evaluate(ctx context.Context, target Target, failureLine string) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	depsOK, err := target.CanBuildDeps(ctx)
	if err != nil {
		return resourceLimitOr(err)
	}
	if !depsOK {
		return Result{
			Outcome:          DependencyFailure,
			FailedDependency: target.SampleDependencyFailure(),
		}, nil
	}

	builds, err := target.CanBuild(ctx)
	if err != nil {
		return resourceLimitOr(err)
	}
	if builds {
		return Result{Outcome: Success}, nil
	}

	if failureLine == "" {
		return Result{Outcome: Failure}, nil
	}

	logger.Debug("Checking build log for failure line.", "line", failureLine)
	contains, err := target.LogContains(ctx, failureLine)
	if err != nil {
		return Result{}, err
	}
	if contains {
		return Result{Outcome: Failure}, nil
	}
	return Result{Outcome: FailureWithoutLine}, nil
}

// resourceLimitOr translates a resource-limit condition into its outcome
// and passes every other error through.
func resourceLimitOr(err error) (Result, error) {
	var limitErr *derivation.ResourceLimitError
	if errors.As(err, &limitErr) {
		return Result{Outcome: ResourceLimit}, nil
	}
	return Result{}, err
}
