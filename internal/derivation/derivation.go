package derivation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vk/nixbisect/internal/ctxlog"
	"github.com/vk/nixbisect/internal/dag"
	"github.com/vk/nixbisect/internal/nix"
)

// Store is the slice of the nix client the evaluator depends on.
type Store interface {
	BuildDry(ctx context.Context, drvs []string, options []nix.Option) (toBuild, toFetch []string, err error)
	References(ctx context.Context, drvs []string) ([]string, error)
	Realise(ctx context.Context, drv string, options []nix.Option) ([]string, error)
	Log(ctx context.Context, drv string) (string, bool, error)
}

// ResourceConfig bounds the expensive work one evaluation may perform.
type ResourceConfig struct {
	// MaxRebuilds caps the number of realisation attempts across the whole
	// evaluation, dependencies and target combined. Nil means unbounded.
	MaxRebuilds *int
	// RebuildBlacklist holds regular expressions matched against any store
	// path that would have to be rebuilt. A match aborts the evaluation.
	RebuildBlacklist []string
}

// Limit reasons reported through ResourceLimitError.
const (
	ReasonBudget    = "rebuild budget exhausted"
	ReasonBlacklist = "rebuild blacklist matched"
)

// ResourceLimitError reports that continuing the evaluation would violate a
// resource constraint. It is raised before the offending realisation is
// attempted, never after.
type ResourceLimitError struct {
	Drv    string
	Reason string
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Drv)
}

// Derivation owns one status evaluation of a single target. It tracks the
// rebuild budget and the first failing dependency; none of that state
// survives past the evaluation.
type Derivation struct {
	drv       string
	store     Store
	options   []nix.Option
	cfg       ResourceConfig
	blacklist []*regexp.Regexp

	rebuilds  int
	failedDep string
}

// New creates a Derivation for one evaluation. The blacklist patterns are
// compiled eagerly so that a malformed pattern fails up front rather than
// mid-evaluation.
func New(drv string, store Store, options []nix.Option, cfg ResourceConfig) (*Derivation, error) {
	blacklist := make([]*regexp.Regexp, 0, len(cfg.RebuildBlacklist))
	for _, pattern := range cfg.RebuildBlacklist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid rebuild blacklist pattern %q: %w", pattern, err)
		}
		blacklist = append(blacklist, re)
	}

	return &Derivation{
		drv:       drv,
		store:     store,
		options:   options,
		cfg:       cfg,
		blacklist: blacklist,
	}, nil
}

// CanBuildDeps reports whether every dependency of the target can be built
// or is already available. Dependencies are visited in topological order
// with a lexicographic tie-break, so the first failure is reproducible for
// a fixed graph state. Traversal stops at the first failing dependency; one
// witness is enough to explain non-buildability. The whole set of needed
// rebuilds is matched against the blacklist before anything is realised, so
// a blacklisted input yields a *ResourceLimitError even when another input
// would have failed first. The budget is enforced per attempt.
func (d *Derivation) CanBuildDeps(ctx context.Context) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	toBuild, _, err := d.store.BuildDry(ctx, []string{d.drv}, d.options)
	if err != nil {
		return false, err
	}

	needed := make(map[string]bool, len(toBuild))
	pending := make([]string, 0, len(toBuild))
	for _, path := range toBuild {
		if path != d.drv {
			needed[path] = true
			pending = append(pending, path)
		}
	}
	if len(pending) == 0 {
		logger.Debug("All dependencies already available.")
		return true, nil
	}
	if err := d.checkBlacklist(pending); err != nil {
		return false, err
	}
	logger.Debug("Dependencies need to be realised.", "count", len(pending))

	graph, err := dag.FromReferences(ctx, d.store, []string{d.drv})
	if err != nil {
		return false, err
	}
	order, err := graph.TopoSort()
	if err != nil {
		return false, err
	}

	for _, dep := range order {
		if !needed[dep] {
			continue
		}
		if err := d.realiseWithinLimits(ctx, dep); err != nil {
			var buildErr *nix.BuildError
			if errors.As(err, &buildErr) {
				d.failedDep = dep
				logger.Debug("Dependency failed to build.", "drv", dep)
				return false, nil
			}
			return false, err
		}
	}

	return true, nil
}

// SampleDependencyFailure returns the store path of the dependency that
// made CanBuildDeps return false. It is empty until then.
func (d *Derivation) SampleDependencyFailure() string {
	return d.failedDep
}

// CanBuild reports whether the target itself builds. The same blacklist and
// budget rules as for dependencies apply to the target, and a target that
// is already available builds for free.
func (d *Derivation) CanBuild(ctx context.Context) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	toBuild, _, err := d.store.BuildDry(ctx, []string{d.drv}, d.options)
	if err != nil {
		return false, err
	}
	if len(toBuild) == 0 {
		logger.Debug("Target already available, nothing to build.")
		return true, nil
	}
	if err := d.checkBlacklist(toBuild); err != nil {
		return false, err
	}

	if err := d.realiseWithinLimits(ctx, d.drv); err != nil {
		var buildErr *nix.BuildError
		if errors.As(err, &buildErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LogContains reports whether the target's build log contains the given
// phrase. A missing log never matches.
func (d *Derivation) LogContains(ctx context.Context, phrase string) (bool, error) {
	log, ok, err := d.store.Log(ctx, d.drv)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return strings.Contains(log, phrase), nil
}

// checkBlacklist scans every path that would have to be rebuilt before any
// realisation starts. Checking the whole set up front means a blacklisted
// rebuild deep in the graph cannot be masked by an earlier build failure.
// The scan runs over the sorted paths so the reported path is deterministic.
func (d *Derivation) checkBlacklist(paths []string) error {
	if len(d.blacklist) == 0 {
		return nil
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, path := range sorted {
		for _, re := range d.blacklist {
			if re.MatchString(path) {
				return &ResourceLimitError{Drv: path, Reason: ReasonBlacklist}
			}
		}
	}
	return nil
}

// realiseWithinLimits performs the check-then-act sequence for one store
// path: blacklist first, then budget, then the realisation attempt. The
// budget check happens before the attempt so the cap is never overshot.
func (d *Derivation) realiseWithinLimits(ctx context.Context, drv string) error {
	for _, re := range d.blacklist {
		if re.MatchString(drv) {
			return &ResourceLimitError{Drv: drv, Reason: ReasonBlacklist}
		}
	}

	if d.cfg.MaxRebuilds != nil && d.rebuilds+1 > *d.cfg.MaxRebuilds {
		return &ResourceLimitError{Drv: drv, Reason: ReasonBudget}
	}
	d.rebuilds++

	_, err := d.store.Realise(ctx, drv, d.options)
	return err
}
