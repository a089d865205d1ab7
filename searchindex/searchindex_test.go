package searchindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvault/vaultd/searchindex"
)

type fakeRepo struct {
	cleared    map[string]bool
	notReady   map[string]bool
	dirty      map[string]bool
	clearedAll bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{cleared: map[string]bool{}, notReady: map[string]bool{}, dirty: map[string]bool{}}
}

func (r *fakeRepo) ClearMountEntries(_ context.Context, mountID string) error {
	r.cleared[mountID] = true
	return nil
}
func (r *fakeRepo) MarkNotReady(_ context.Context, mountID string) error {
	r.notReady[mountID] = true
	return nil
}
func (r *fakeRepo) MarkDirty(_ context.Context, mountID string) error {
	r.dirty[mountID] = true
	return nil
}
func (r *fakeRepo) ClearDirty(_ context.Context, mountID string) error {
	delete(r.dirty, mountID)
	return nil
}
func (r *fakeRepo) ClearAll(context.Context) error {
	r.clearedAll = true
	return nil
}

func TestClearMount_KeepState(t *testing.T) {
	repo := newFakeRepo()
	c := searchindex.NewCoordinator(repo)
	require.NoError(t, c.ClearMount(context.Background(), "m1", true))
	assert.True(t, repo.cleared["m1"])
	assert.True(t, repo.notReady["m1"])
	assert.True(t, repo.dirty["m1"])
}

func TestClearMount_NoKeepState(t *testing.T) {
	repo := newFakeRepo()
	repo.dirty["m1"] = true
	c := searchindex.NewCoordinator(repo)
	require.NoError(t, c.ClearMount(context.Background(), "m1", false))
	assert.True(t, repo.cleared["m1"])
	assert.False(t, repo.dirty["m1"])
	assert.False(t, repo.notReady["m1"])
}

func TestClearAll(t *testing.T) {
	repo := newFakeRepo()
	c := searchindex.NewCoordinator(repo)
	require.NoError(t, c.ClearAll(context.Background()))
	assert.True(t, repo.clearedAll)
}
