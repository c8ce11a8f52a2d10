package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Len(t, g.nodes, 2)
	assert.True(t, g.Contains("b"))
	assert.False(t, g.Contains("dne"))
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Contains(t, nodeB.deps, "a")
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestTopoSort(t *testing.T) {
	t.Run("dependencies come before dependents", func(t *testing.T) {
		g := New()
		for _, id := range []string{"app", "libc", "compiler"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("libc", "app"))
		require.NoError(t, g.AddEdge("compiler", "libc"))

		order, err := g.TopoSort()
		require.NoError(t, err)
		assert.Equal(t, []string{"compiler", "libc", "app"}, order)
	})

	t.Run("ties break lexicographically", func(t *testing.T) {
		g := New()
		for _, id := range []string{"target", "zlib", "acl", "mmm"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("zlib", "target"))
		require.NoError(t, g.AddEdge("acl", "target"))
		require.NoError(t, g.AddEdge("mmm", "target"))

		// The three roots are independent, so the order among them is the
		// lexicographic one, every time.
		for i := 0; i < 10; i++ {
			order, err := g.TopoSort()
			require.NoError(t, err)
			assert.Equal(t, []string{"acl", "mmm", "zlib", "target"}, order)
		}
	})

	t.Run("cycle is an error", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.TopoSort()
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("chain has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

// fakeQuerier serves reference lists from a map and counts queries.
type fakeQuerier struct {
	refs    map[string][]string
	queried map[string]int
}

func (f *fakeQuerier) References(_ context.Context, drvs []string) ([]string, error) {
	if f.queried == nil {
		f.queried = make(map[string]int)
	}
	f.queried[drvs[0]]++
	return f.refs[drvs[0]], nil
}

func TestFromReferences(t *testing.T) {
	store := &fakeQuerier{refs: map[string][]string{
		"app":  {"libc", "zlib"},
		"libc": {"compiler"},
		"zlib": {"compiler", "zlib"}, // self-reference must be ignored
	}}

	g, err := FromReferences(context.Background(), store, []string{"app"})
	require.NoError(t, err)

	assert.Equal(t, 4, g.Len())
	order, err := g.TopoSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"compiler", "libc", "zlib", "app"}, order)

	// Every path in the closure is queried exactly once.
	for drv, count := range store.queried {
		assert.Equal(t, 1, count, "path %s queried %d times", drv, count)
	}
}

func TestFromReferences_CyclicClosure(t *testing.T) {
	store := &fakeQuerier{refs: map[string][]string{
		"app":  {"liba"},
		"liba": {"libb"},
		"libb": {"liba"},
	}}

	_, err := FromReferences(context.Background(), store, []string{"app"})
	assert.ErrorContains(t, err, "cycle detected")
}
