package dag

import (
	"context"
	"fmt"

	"github.com/vk/nixbisect/internal/ctxlog"
)

// ReferenceQuerier provides the immediate dependencies of store paths. It is
// satisfied by the nix client.
type ReferenceQuerier interface {
	References(ctx context.Context, drvs []string) ([]string, error)
}

// FromReferences builds the dependency graph of the closure rooted at the
// given store paths, walking immediate references breadth-first. Each path
// is queried exactly once, and a cyclic closure is an error.
func FromReferences(ctx context.Context, store ReferenceQuerier, roots []string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	graph := New()
	queue := make([]string, 0, len(roots))

	// A path enters the queue exactly once, when it first enters the graph.
	for _, root := range roots {
		if graph.Contains(root) {
			continue
		}
		graph.AddNode(root)
		queue = append(queue, root)
	}

	for len(queue) > 0 {
		drv := queue[0]
		queue = queue[1:]

		refs, err := store.References(ctx, []string{drv})
		if err != nil {
			return nil, fmt.Errorf("querying references of %s: %w", drv, err)
		}

		for _, ref := range refs {
			// A store path may list itself among its references.
			if ref == drv {
				continue
			}
			if !graph.Contains(ref) {
				graph.AddNode(ref)
				queue = append(queue, ref)
			}
			if err := graph.AddEdge(ref, drv); err != nil {
				return nil, err
			}
		}
	}

	// Malformed reference data surfaces here, with the offending path named,
	// rather than later during the sort.
	if err := graph.DetectCycles(); err != nil {
		return nil, err
	}

	logger.Debug("Dependency graph built from store references.", "node_count", graph.Len())
	return graph, nil
}
