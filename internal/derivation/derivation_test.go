package derivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/nixbisect/internal/nix"
)

const target = "/nix/store/aaa-target.drv"

// fakeStore scripts the nix boundary: which paths need building, how they
// reference each other, and which ones fail. It records every realisation
// attempt in order.
type fakeStore struct {
	needsBuild []string
	refs       map[string][]string
	failing    map[string]bool
	logs       map[string]string

	built    map[string]bool
	realised []string
}

func (s *fakeStore) BuildDry(_ context.Context, _ []string, _ []nix.Option) ([]string, []string, error) {
	var toBuild []string
	for _, drv := range s.needsBuild {
		if !s.built[drv] {
			toBuild = append(toBuild, drv)
		}
	}
	return toBuild, nil, nil
}

func (s *fakeStore) References(_ context.Context, drvs []string) ([]string, error) {
	return s.refs[drvs[0]], nil
}

func (s *fakeStore) Realise(_ context.Context, drv string, _ []nix.Option) ([]string, error) {
	s.realised = append(s.realised, drv)
	if s.failing[drv] {
		return nil, &nix.BuildError{Failed: []string{drv}, Output: "builder failed"}
	}
	if s.built == nil {
		s.built = make(map[string]bool)
	}
	s.built[drv] = true
	return []string{drv + "-output"}, nil
}

func (s *fakeStore) Log(_ context.Context, drv string) (string, bool, error) {
	log, ok := s.logs[drv]
	return log, ok, nil
}

func maxRebuilds(n int) *int {
	return &n
}

func TestNew_RejectsBadBlacklistPattern(t *testing.T) {
	_, err := New(target, &fakeStore{}, nil, ResourceConfig{RebuildBlacklist: []string{"("}})
	assert.ErrorContains(t, err, "invalid rebuild blacklist pattern")
}

func TestCanBuildDeps(t *testing.T) {
	t.Run("everything already available", func(t *testing.T) {
		store := &fakeStore{}
		d, err := New(target, store, nil, ResourceConfig{})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, store.realised, "nothing should be realised when the store is warm")
	})

	t.Run("only the target needs building", func(t *testing.T) {
		store := &fakeStore{
			needsBuild: []string{target},
			refs:       map[string][]string{},
		}
		d, err := New(target, store, nil, ResourceConfig{})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		// The target itself is not a dependency; it must not be built here.
		assert.Empty(t, store.realised)
	})

	t.Run("first failing dependency is the witness", func(t *testing.T) {
		depA := "/nix/store/bbb-liba.drv"
		depB := "/nix/store/ccc-libb.drv"
		store := &fakeStore{
			needsBuild: []string{depB, depA, target},
			refs: map[string][]string{
				target: {depA, depB},
			},
			failing: map[string]bool{depA: true, depB: true},
		}
		d, err := New(target, store, nil, ResourceConfig{})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)

		// Both deps are broken and independent; the traversal order is
		// lexicographic, so depA is always the witness and depB is never
		// even attempted.
		assert.Equal(t, depA, d.SampleDependencyFailure())
		assert.Equal(t, []string{depA}, store.realised)
	})

	t.Run("dependency order is topological", func(t *testing.T) {
		leaf := "/nix/store/zzz-leaf.drv"
		mid := "/nix/store/bbb-mid.drv"
		store := &fakeStore{
			needsBuild: []string{mid, leaf, target},
			refs: map[string][]string{
				target: {mid},
				mid:    {leaf},
			},
		}
		d, err := New(target, store, nil, ResourceConfig{})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		// leaf sorts after mid lexicographically but is built first because
		// mid depends on it.
		assert.Equal(t, []string{leaf, mid}, store.realised)
	})
}

func TestRebuildBudget(t *testing.T) {
	depA := "/nix/store/bbb-liba.drv"
	depB := "/nix/store/ccc-libb.drv"

	newStore := func() *fakeStore {
		return &fakeStore{
			needsBuild: []string{depA, depB, target},
			refs: map[string][]string{
				target: {depA, depB},
			},
		}
	}

	t.Run("zero budget forbids any rebuild", func(t *testing.T) {
		store := newStore()
		d, err := New(target, store, nil, ResourceConfig{MaxRebuilds: maxRebuilds(0)})
		require.NoError(t, err)

		_, err = d.CanBuildDeps(context.Background())
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, ReasonBudget, limitErr.Reason)
		assert.Empty(t, store.realised, "the budget check must precede the attempt")
	})

	t.Run("budget exhausted between dependencies", func(t *testing.T) {
		store := newStore()
		d, err := New(target, store, nil, ResourceConfig{MaxRebuilds: maxRebuilds(1)})
		require.NoError(t, err)

		_, err = d.CanBuildDeps(context.Background())
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, ReasonBudget, limitErr.Reason)
		assert.Equal(t, depB, limitErr.Drv)
		// Exactly one rebuild happened; the second was refused up front.
		assert.Equal(t, []string{depA}, store.realised)
	})

	t.Run("budget spans dependencies and target", func(t *testing.T) {
		store := newStore()
		d, err := New(target, store, nil, ResourceConfig{MaxRebuilds: maxRebuilds(2)})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		_, err = d.CanBuild(context.Background())
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, target, limitErr.Drv)
		assert.Equal(t, []string{depA, depB}, store.realised)
	})

	t.Run("unbounded when unset", func(t *testing.T) {
		store := newStore()
		d, err := New(target, store, nil, ResourceConfig{})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = d.CanBuild(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{depA, depB, target}, store.realised)
	})
}

func TestRebuildBlacklist(t *testing.T) {
	dep := "/nix/store/bbb-linux-kernel.drv"

	t.Run("blacklisted dependency aborts before any attempt", func(t *testing.T) {
		store := &fakeStore{
			needsBuild: []string{dep, target},
			refs: map[string][]string{
				target: {dep},
			},
			// Even a dependency that would build fine must not be attempted.
			failing: map[string]bool{},
		}
		d, err := New(target, store, nil, ResourceConfig{RebuildBlacklist: []string{"linux-kernel"}})
		require.NoError(t, err)

		_, err = d.CanBuildDeps(context.Background())
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, ReasonBlacklist, limitErr.Reason)
		assert.Equal(t, dep, limitErr.Drv)
		assert.Empty(t, store.realised)
	})

	t.Run("blacklisted dependency wins over an earlier failing one", func(t *testing.T) {
		broken := "/nix/store/bbb-liba.drv"
		blocked := "/nix/store/ccc-linux-kernel.drv"
		store := &fakeStore{
			needsBuild: []string{broken, blocked, target},
			refs: map[string][]string{
				target: {broken, blocked},
			},
			failing: map[string]bool{broken: true},
		}
		d, err := New(target, store, nil, ResourceConfig{RebuildBlacklist: []string{"linux-kernel"}})
		require.NoError(t, err)

		// broken sorts first in the traversal, but the blacklist covers the
		// whole rebuild set up front, so its failure must never be observed.
		_, err = d.CanBuildDeps(context.Background())
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, ReasonBlacklist, limitErr.Reason)
		assert.Equal(t, blocked, limitErr.Drv)
		assert.Empty(t, store.realised)
	})

	t.Run("blacklisted target aborts the target pass", func(t *testing.T) {
		store := &fakeStore{needsBuild: []string{target}}
		d, err := New(target, store, nil, ResourceConfig{RebuildBlacklist: []string{"aaa-target"}})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		_, err = d.CanBuild(context.Background())
		var limitErr *ResourceLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, ReasonBlacklist, limitErr.Reason)
	})

	t.Run("an available blacklisted path is fine", func(t *testing.T) {
		// The blacklist only guards rebuilds; paths already in the store
		// never trip it.
		store := &fakeStore{}
		d, err := New(target, store, nil, ResourceConfig{RebuildBlacklist: []string{".*"}})
		require.NoError(t, err)

		ok, err := d.CanBuildDeps(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = d.CanBuild(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestCanBuild(t *testing.T) {
	t.Run("failure is reported, not returned as an error", func(t *testing.T) {
		store := &fakeStore{
			needsBuild: []string{target},
			failing:    map[string]bool{target: true},
		}
		d, err := New(target, store, nil, ResourceConfig{})
		require.NoError(t, err)

		ok, err := d.CanBuild(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLogContains(t *testing.T) {
	store := &fakeStore{
		logs: map[string]string{
			target: "compiling...\nerror: undefined reference to `foo'\n",
		},
	}
	d, err := New(target, store, nil, ResourceConfig{})
	require.NoError(t, err)

	contains, err := d.LogContains(context.Background(), "undefined reference")
	require.NoError(t, err)
	assert.True(t, contains)

	contains, err = d.LogContains(context.Background(), "segmentation fault")
	require.NoError(t, err)
	assert.False(t, contains)

	t.Run("missing log never matches", func(t *testing.T) {
		d, err := New("/nix/store/ddd-other.drv", store, nil, ResourceConfig{})
		require.NoError(t, err)

		contains, err := d.LogContains(context.Background(), "anything")
		require.NoError(t, err)
		assert.False(t, contains)
	})
}
