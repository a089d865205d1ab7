// Package migrate provides a small, dependency-ordered schema
// versioning engine used once, at process start, to stand up vaultdb's
// own tables. It is deliberately not a general migration framework:
// each Migration owns one version table and runs its Steps in order,
// skipping any whose Version is not greater than the table's current
// version.
package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/shared/tagsql"
)

// Error is the class of all migration failures.
var Error = errs.Class("migrate")

// Action is something a Step does to move the schema forward.
type Action interface {
	Run(ctx context.Context, log *zap.Logger, db *tagsql.DB, tx *tagsql.Tx) error
}

// SQL is an Action that runs a fixed sequence of statements.
type SQL []string

// Run implements Action.
func (stmts SQL) Run(ctx context.Context, log *zap.Logger, _ *tagsql.DB, tx *tagsql.Tx) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Func is an Action implemented as an arbitrary callback, for steps
// that need more than plain SQL (e.g. touching the filesystem).
type Func func(ctx context.Context, log *zap.Logger, db *tagsql.DB, tx *tagsql.Tx) error

// Run implements Action.
func (f Func) Run(ctx context.Context, log *zap.Logger, db *tagsql.DB, tx *tagsql.Tx) error {
	return f(ctx, log, db, tx)
}

// Step is one version increment of a Migration.
type Step struct {
	DB          *tagsql.DB
	Description string
	Version     int
	Action      Action
}

// Migration is a sequence of Steps applied, in order, to a single
// version table.
type Migration struct {
	Table string
	Steps []*Step
}

// ensureVersionTable creates the migration's version table if absent.
func (m *Migration) ensureVersionTable(ctx context.Context, db *tagsql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (version integer NOT NULL, applied_at text NOT NULL)`,
		m.Table))
	return Error.Wrap(err)
}

// CurrentVersion returns the highest version already applied, or -1 if
// none has been. db is the handle the version table itself lives in
// (it may differ from an individual step's DB).
func (m *Migration) CurrentVersion(ctx context.Context, log *zap.Logger, db *tagsql.DB) (int, error) {
	if err := m.ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(version), -1) FROM %s`, m.Table))
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, Error.Wrap(err)
	}
	return version, nil
}

// Run applies every step whose Version is greater than the current
// version, in the order they appear in Steps (the slice is not sorted
// by Version first), recording each as it completes.
func (m *Migration) Run(ctx context.Context, log *zap.Logger) error {
	if len(m.Steps) == 0 {
		return nil
	}
	versionDB := m.Steps[0].DB
	current, err := m.CurrentVersion(ctx, log, versionDB)
	if err != nil {
		return err
	}

	for _, step := range m.Steps {
		if step.Version <= current {
			continue
		}
		log.Info("migration step",
			zap.String("table", m.Table),
			zap.Int("version", step.Version),
			zap.String("description", step.Description))

		tx, err := step.DB.BeginTx(ctx, nil)
		if err != nil {
			return Error.Wrap(err)
		}
		if err := step.Action.Run(ctx, log, step.DB, tx); err != nil {
			_ = tx.Rollback()
			return Error.Wrap(fmt.Errorf("step %d (%s): %w", step.Version, step.Description, err))
		}
		if _, err := tx.ExecContext(ctx, step.DB.Rebind(fmt.Sprintf(
			`INSERT INTO %s (version, applied_at) VALUES (?, ?)`, m.Table)),
			step.Version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return Error.Wrap(err)
		}
		if err := tx.Commit(); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}
