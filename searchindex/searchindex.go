// Package searchindex coordinates the derived FS search index:
// invalidation only. The index itself (entries, state, dirty, FTS) is
// derived data rebuilt out-of-core; this package only clears it and
// marks it not-ready.
package searchindex

import "context"

// Repository is vaultdb's persistence contract for the four
// fs_search_* tables.
type Repository interface {
	ClearMountEntries(ctx context.Context, mountID string) error
	MarkNotReady(ctx context.Context, mountID string) error
	MarkDirty(ctx context.Context, mountID string) error
	ClearDirty(ctx context.Context, mountID string) error
	ClearAll(ctx context.Context) error
}

// Coordinator invalidates the derived index tables.
type Coordinator struct {
	repo Repository
}

// NewCoordinator wires a Coordinator from its repository.
func NewCoordinator(repo Repository) *Coordinator {
	return &Coordinator{repo: repo}
}

// ClearMount clears a single mount's derived index entries. When
// keepState is true the mount is marked not-ready (and dirty) so a
// background rebuilder picks it up later; when false the dirty marker
// is cleared instead (the not-ready state is left as it is), matching
// delete's "the index no longer has anything to describe" case.
func (c *Coordinator) ClearMount(ctx context.Context, mountID string, keepState bool) error {
	if err := c.repo.ClearMountEntries(ctx, mountID); err != nil {
		return err
	}
	if !keepState {
		return c.repo.ClearDirty(ctx, mountID)
	}
	if err := c.repo.MarkNotReady(ctx, mountID); err != nil {
		return err
	}
	return c.repo.MarkDirty(ctx, mountID)
}

// ClearAll unconditionally clears every FS search index table. Restore
// calls it once its statements have run, whatever their per-row
// outcome; a restore rejected before that point (validation,
// pre-flight, a failed delete) does not reach it.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	return c.repo.ClearAll(ctx)
}
