package vaultdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cloudvault/vaultd/scheduler"
	"github.com/cloudvault/vaultd/vaulterrs"
)

// schedulerTickStateKey is the fixed system_settings key the tick
// ledger lives under.
const schedulerTickStateKey = "scheduler_tick_state"

// SchedulerRepo implements scheduler.Repository over the
// system_settings singleton row.
type SchedulerRepo struct {
	db *DB
}

// NewSchedulerRepo returns a repository bound to db.
func NewSchedulerRepo(db *DB) *SchedulerRepo {
	return &SchedulerRepo{db: db}
}

type tickStateJSON struct {
	LastMs   int64   `json:"lastMs"`
	LastCron *string `json:"lastCron"`
}

func (r *SchedulerRepo) GetTickState(ctx context.Context) (*scheduler.TickState, error) {
	query := r.db.Rebind(`SELECT value FROM system_settings WHERE key = ?`)
	var raw string
	err := r.db.sql.QueryRowContext(ctx, query, schedulerTickStateKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}
	var parsed tickStateJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, vaulterrs.Repository.Wrap(err)
	}
	return &scheduler.TickState{LastMs: parsed.LastMs, LastCron: parsed.LastCron}, nil
}

func (r *SchedulerRepo) SetTickState(ctx context.Context, state scheduler.TickState) error {
	raw, err := json.Marshal(tickStateJSON{LastMs: state.LastMs, LastCron: state.LastCron})
	if err != nil {
		return vaulterrs.Repository.Wrap(err)
	}
	query := r.db.Rebind(`INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	_, err = r.db.sql.ExecContext(ctx, query, schedulerTickStateKey, string(raw), formatTime(time.Now()))
	return vaulterrs.Repository.Wrap(err)
}
