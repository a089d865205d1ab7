// Package scheduler implements the scheduler tick ledger: a single-row
// cron witness used to estimate the next platform-trigger invocation.
package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/vaulterrs"
)

// TickState is the persisted JSON value of system_settings'
// scheduler_tick_state row.
type TickState struct {
	LastMs   int64
	LastCron *string
}

// Repository is vaultdb's persistence contract for the tick-state row.
type Repository interface {
	GetTickState(ctx context.Context) (*TickState, error)
	SetTickState(ctx context.Context, state TickState) error
}

// Service implements the tick ledger.
type Service struct {
	repo Repository
	log  *zap.Logger
}

// NewService wires a Service from its repository.
func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Upsert writes the latest real-trigger tick: it rejects a
// non-positive lastMs outright, but a downstream write failure is
// logged and never raised — scheduling itself must not break because
// the witness row failed to persist.
func (s *Service) Upsert(ctx context.Context, lastMs int64, lastCron *string) error {
	if lastMs <= 0 {
		return vaulterrs.Validation.New("lastMs must be positive, got %d", lastMs)
	}
	if err := s.repo.SetTickState(ctx, TickState{LastMs: lastMs, LastCron: lastCron}); err != nil {
		s.log.Warn("scheduler: tick-state write failed", zap.Error(err))
	}
	return nil
}

// LastTick returns the current tick-state row, or nil if none has been
// written yet.
func (s *Service) LastTick(ctx context.Context) (*TickState, error) {
	return s.repo.GetTickState(ctx)
}
