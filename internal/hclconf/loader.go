package hclconf

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/nixbisect/internal/action"
	"github.com/vk/nixbisect/internal/ctxlog"
	"github.com/vk/nixbisect/internal/nix"
	"github.com/vk/nixbisect/internal/status"
)

// File is the decoded and validated run configuration. Nil pointer fields
// were not present in the file and must not override flag values.
type File struct {
	MaxRebuilds      *int
	FailureLine      *string
	RebuildBlacklist []string
	Actions          map[status.Outcome]action.Action
	Options          []nix.Option
	Argstr           []nix.Option
}

// fileRoot is the raw HCL shape of a configuration file.
type fileRoot struct {
	Limits           *limitsBlock   `hcl:"limits,block"`
	On               []*onBlock     `hcl:"on,block"`
	RebuildBlacklist []string       `hcl:"rebuild_blacklist,optional"`
	Options          hcl.Expression `hcl:"options,optional"`
	Argstr           hcl.Expression `hcl:"argstr,optional"`
}

type limitsBlock struct {
	MaxRebuilds *int    `hcl:"max_rebuilds,optional"`
	FailureLine *string `hcl:"failure_line,optional"`
}

// onBlock maps one outcome to a bisect action, e.g. `on "failure" { action = "bad" }`.
type onBlock struct {
	Outcome string `hcl:"outcome,label"`
	Action  string `hcl:"action"`
}

// Load parses and validates one configuration file. Unknown outcome labels,
// unknown action tokens and malformed option maps are rejected here, so the
// evaluation itself never has to re-validate configuration.
func Load(ctx context.Context, path string) (*File, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading run configuration.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
	}

	file := &File{
		RebuildBlacklist: root.RebuildBlacklist,
		Actions:          make(map[status.Outcome]action.Action),
	}
	if root.Limits != nil {
		file.MaxRebuilds = root.Limits.MaxRebuilds
		file.FailureLine = root.Limits.FailureLine
	}

	for _, block := range root.On {
		outcome, err := status.Parse(block.Outcome)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid on block: %w", path, err)
		}
		act, err := action.Parse(block.Action)
		if err != nil {
			return nil, fmt.Errorf("%s: on %q: %w", path, block.Outcome, err)
		}
		if _, dup := file.Actions[outcome]; dup {
			return nil, fmt.Errorf("%s: duplicate on block for outcome %q", path, block.Outcome)
		}
		file.Actions[outcome] = act
	}

	var err error
	if file.Options, err = decodeOptionMap(root.Options, "options"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if file.Argstr, err = decodeOptionMap(root.Argstr, "argstr"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.Debug("Run configuration loaded.", "actions", len(file.Actions), "blacklist", len(file.RebuildBlacklist))
	return file, nil
}

// decodeOptionMap evaluates a `name = value` map expression into name/value
// pairs, sorted by name so downstream command lines are deterministic.
func decodeOptionMap(expr hcl.Expression, attr string) ([]nix.Option, error) {
	if expr == nil {
		return nil, nil
	}

	value, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating %s: %w", attr, diags)
	}
	if value.IsNull() {
		return nil, nil
	}
	if !value.Type().IsObjectType() && !value.Type().IsMapType() {
		return nil, fmt.Errorf("%s must be a map of strings, got %s", attr, value.Type().FriendlyName())
	}

	valueMap := value.AsValueMap()
	names := make([]string, 0, len(valueMap))
	for name := range valueMap {
		names = append(names, name)
	}
	sort.Strings(names)

	options := make([]nix.Option, 0, len(names))
	for _, name := range names {
		str, err := convert.Convert(valueMap[name], cty.String)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", attr, name, err)
		}
		options = append(options, nix.Option{Name: name, Value: str.AsString()})
	}
	return options, nil
}
