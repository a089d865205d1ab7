// Package quota implements the storage quota guard: pre-write
// admission control against a computed-usage snapshot, plus an
// admin-facing usage report across all configs.
package quota

import (
	"context"

	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/vaulterrs"
)

// ComputedUsage is the latest computed-usage snapshot for a storage
// config.
type ComputedUsage struct {
	UsedBytes  int64
	Source     string
	SnapshotAt int64
	Details    map[string]any
}

// Repository is the read surface quota needs from vaultdb: the
// configured limit and the latest usage snapshot, plus a prior-share
// lookup for the same-key overwrite accounting.
type Repository interface {
	ConfiguredLimitBytes(ctx context.Context, storageConfigID string) (*int64, error)
	LatestUsage(ctx context.Context, storageConfigID string) (*ComputedUsage, error)
	PriorShareSize(ctx context.Context, storageConfigID, storageKey string) (*int64, error)
	AllConfigIDs(ctx context.Context) ([]string, error)
}

// AssertRequest is the input to AssertCanConsume.
type AssertRequest struct {
	StorageConfigID string
	IncomingBytes   int64
	OldBytes        int64
	Context         string
}

// Service implements the guard and the usage report.
type Service struct {
	repo Repository
	log  *zap.Logger
}

// NewService wires a Service from its repository.
func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// AssertCanConsume is the pre-write admission check: unlimited configs
// and configs with no snapshot yet are allowed (the snapshot is a soft
// bound); otherwise used + max(0, delta) must not exceed the limit.
func (s *Service) AssertCanConsume(ctx context.Context, req AssertRequest) error {
	limit, err := s.repo.ConfiguredLimitBytes(ctx, req.StorageConfigID)
	if err != nil {
		return err
	}
	if limit == nil {
		return nil
	}

	usage, err := s.repo.LatestUsage(ctx, req.StorageConfigID)
	if err != nil {
		return err
	}
	if usage == nil {
		return nil
	}

	delta := req.IncomingBytes - req.OldBytes
	if delta < 0 {
		delta = 0
	}
	if usage.UsedBytes+delta > *limit {
		return vaulterrs.Validation.New(
			"%s: quota exceeded (used=%d limit=%d delta=%d)",
			req.Context, usage.UsedBytes, *limit, delta)
	}
	return nil
}

// OldBytesForKey resolves same-key overwrite accounting for share
// uploads: find a prior share record at (storage_config_id,
// storage_key) and use its size if non-negative.
func (s *Service) OldBytesForKey(ctx context.Context, storageConfigID, storageKey string) int64 {
	size, err := s.repo.PriorShareSize(ctx, storageConfigID, storageKey)
	if err != nil || size == nil || *size < 0 {
		return 0
	}
	return *size
}

// ConfigUsage is one row of the admin usage report.
type ConfigUsage struct {
	StorageConfigID string
	ConfiguredLimit *int64
	EnableDiskUsage bool
	ComputedUsage   *ComputedUsage
	LimitStatus     *LimitStatus
}

// LimitStatus is populated only when both limit and usage are known.
type LimitStatus struct {
	RemainingBytes int64
	PercentUsed    float64
	Exceeded       bool
}

// UsageReport aggregates configured limit and computed usage across
// every known storage config.
func (s *Service) UsageReport(ctx context.Context) ([]ConfigUsage, error) {
	ids, err := s.repo.AllConfigIDs(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]ConfigUsage, 0, len(ids))
	for _, id := range ids {
		limit, err := s.repo.ConfiguredLimitBytes(ctx, id)
		if err != nil {
			return nil, err
		}
		usage, err := s.repo.LatestUsage(ctx, id)
		if err != nil {
			return nil, err
		}

		cu := ConfigUsage{
			StorageConfigID: id,
			ConfiguredLimit: limit,
			EnableDiskUsage: limit != nil,
			ComputedUsage:   usage,
		}
		if limit != nil && usage != nil {
			remaining := *limit - usage.UsedBytes
			percent := float64(0)
			if *limit > 0 {
				percent = float64(usage.UsedBytes) / float64(*limit) * 100
			}
			cu.LimitStatus = &LimitStatus{
				RemainingBytes: remaining,
				PercentUsed:    percent,
				Exceeded:       remaining < 0,
			}
		}
		reports = append(reports, cu)
	}
	return reports, nil
}
