package category

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/recall/pkg/errors"
)

// fakeCascader records cascade calls and can be told to fail.
type fakeCascader struct {
	updated [][2]string
	trashed []string
	count   int
	fail    bool
}

func (f *fakeCascader) UpdateCategory(ctx context.Context, oldName, newName string) (int, error) {
	if f.fail {
		return 0, stderrors.New("store offline")
	}
	f.updated = append(f.updated, [2]string{oldName, newName})
	return f.count, nil
}

func (f *fakeCascader) TrashByCategory(ctx context.Context, name string) (int, error) {
	if f.fail {
		return 0, stderrors.New("store offline")
	}
	f.trashed = append(f.trashed, name)
	return f.count, nil
}

func (f *fakeCascader) CountByCategory(ctx context.Context, name string) (int, error) {
	return f.count, nil
}

func seeded(t *testing.T, cascader Cascader) *Registry {
	t.Helper()
	registry := NewRegistry(cascader)

	require.NoError(t, registry.Create(Category{Name: "infrastructure", IsParent: true}))
	require.NoError(t, registry.Create(Category{Name: "networking", Parent: "infrastructure"}))
	require.NoError(t, registry.Create(Category{Name: "dns", Parent: "networking"}))
	require.NoError(t, registry.Create(Category{Name: "general"}))

	return registry
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("architecture"))
	assert.NoError(t, ValidateName("my-notes2"))

	for _, bad := range []string{"", "a", "Uppercase", "9starts-with-digit", "-leading", "with space", "waaaaaaaaaaaaaaaaaaaaaaaaaaay-too-long-name"} {
		assert.Error(t, ValidateName(bad), "expected %q to be rejected", bad)
	}
}

func TestParentOf(t *testing.T) {
	registry := seeded(t, nil)

	assert.Equal(t, "networking", registry.ParentOf("dns"))
	// Top-level categories are their own family root.
	assert.Equal(t, "infrastructure", registry.ParentOf("infrastructure"))
	// Unknown names resolve to themselves.
	assert.Equal(t, "ghost", registry.ParentOf("ghost"))
}

func TestWouldCreateCycle(t *testing.T) {
	registry := seeded(t, nil)

	assert.True(t, registry.WouldCreateCycle("infrastructure", "dns"))
	assert.True(t, registry.WouldCreateCycle("networking", "networking"))
	assert.False(t, registry.WouldCreateCycle("dns", "general"))
}

func TestUpdateRejectsCycleBeforeMutation(t *testing.T) {
	registry := seeded(t, nil)

	err := registry.Update("infrastructure", func(cat *Category) {
		cat.Parent = "dns"
	})

	assert.True(t, errors.IsCircular(err))

	// The hierarchy must be untouched.
	cat, getErr := registry.Get("infrastructure")
	require.NoError(t, getErr)
	assert.Empty(t, cat.Parent)
}

func TestCreateConflictsAndStubs(t *testing.T) {
	registry := seeded(t, nil)

	err := registry.Create(Category{Name: "general"})
	assert.True(t, errors.IsConflict(err))

	require.NoError(t, registry.EnsureStub("brand-new"))
	cat, err := registry.Get("brand-new")
	require.NoError(t, err)
	assert.Contains(t, cat.Description, "auto-created")

	// Stubbing an existing category is a no-op.
	require.NoError(t, registry.EnsureStub("general"))

	// Stubbing an invalid name must fail, not half-create.
	assert.Error(t, registry.EnsureStub("Bad Name"))
}

func TestRenameCascades(t *testing.T) {
	cascader := &fakeCascader{count: 4}
	registry := seeded(t, cascader)

	var events []Event
	registry.Subscribe(func(e Event) { events = append(events, e) })

	result, err := registry.Rename(context.Background(), "networking", "netops")
	require.NoError(t, err)

	assert.Equal(t, 1, result.ChildrenUpdated)
	assert.Equal(t, 4, result.MemoriesUpdated)
	assert.Nil(t, result.Warning)

	// Children now point at the new name, and the old name is gone.
	assert.Equal(t, "netops", registry.ParentOf("dns"))
	_, err = registry.Get("networking")
	assert.True(t, errors.IsNotFound(err))

	require.Len(t, cascader.updated, 1)
	assert.Equal(t, [2]string{"networking", "netops"}, cascader.updated[0])

	require.Len(t, events, 1)
	assert.Equal(t, EventRenamed, events[0].Kind)
	assert.Equal(t, "networking", events[0].Previous)
}

func TestRenameCommitsDespiteCascadeFailure(t *testing.T) {
	cascader := &fakeCascader{fail: true}
	registry := seeded(t, cascader)

	result, err := registry.Rename(context.Background(), "general", "misc")
	require.NoError(t, err)
	require.NotNil(t, result.Warning)

	var partial *errors.PartialFailure
	assert.ErrorAs(t, result.Warning, &partial)

	// The rename itself is committed.
	_, err = registry.Get("misc")
	assert.NoError(t, err)
}

func TestDeleteGuards(t *testing.T) {
	cascader := &fakeCascader{count: 2}
	registry := seeded(t, cascader)
	ctx := context.Background()

	// Children without a reassignment target block the delete.
	err := registry.Delete(ctx, "networking", DeleteOptions{})
	assert.True(t, errors.IsConflict(err))

	// Referencing memories without instruction block the delete.
	err = registry.Delete(ctx, "general", DeleteOptions{})
	assert.True(t, errors.IsConflict(err))

	// Reassigning memories unblocks it.
	err = registry.Delete(ctx, "general", DeleteOptions{ReassignMemoriesTo: "dns"})
	require.NoError(t, err)
	assert.Equal(t, [2]string{"general", "dns"}, cascader.updated[0])

	// Children reassignment cascades.
	err = registry.Delete(ctx, "networking", DeleteOptions{
		ReassignChildrenTo: "infrastructure",
		RemoveMemories:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "infrastructure", registry.ParentOf("dns"))
	assert.Contains(t, cascader.trashed, "networking")
}

func TestDeleteStubsReassignmentTarget(t *testing.T) {
	cascader := &fakeCascader{count: 2}
	registry := seeded(t, cascader)

	// Reassigning to a name nobody created yet auto-creates the stub,
	// same as the write path, so the cascade never points at a ghost.
	err := registry.Delete(context.Background(), "general", DeleteOptions{ReassignMemoriesTo: "backlog"})
	require.NoError(t, err)
	assert.Equal(t, [2]string{"general", "backlog"}, cascader.updated[0])

	target, err := registry.Get("backlog")
	require.NoError(t, err)
	assert.Equal(t, "auto-created on first reference", target.Description)
}

func TestSnapshotAndLoad(t *testing.T) {
	registry := seeded(t, nil)
	snapshot := registry.Snapshot()
	assert.Len(t, snapshot, 4)

	fresh := NewRegistry(nil)
	fresh.Load(snapshot)
	assert.Equal(t, "networking", fresh.ParentOf("dns"))
}
