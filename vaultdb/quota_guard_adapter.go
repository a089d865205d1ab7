package vaultdb

import (
	"context"

	"github.com/cloudvault/vaultd/quota"
)

// ShareQuotaGuard adapts *quota.Service's AssertRequest-shaped API to
// the positional share.QuotaGuard contract the upload pipeline calls.
type ShareQuotaGuard struct {
	svc *quota.Service
}

// NewShareQuotaGuard wraps svc for use as a share.QuotaGuard.
func NewShareQuotaGuard(svc *quota.Service) *ShareQuotaGuard {
	return &ShareQuotaGuard{svc: svc}
}

func (g *ShareQuotaGuard) AssertCanConsume(ctx context.Context, storageConfigID string, incomingBytes, oldBytes int64, context_ string) error {
	return g.svc.AssertCanConsume(ctx, quota.AssertRequest{
		StorageConfigID: storageConfigID,
		IncomingBytes:   incomingBytes,
		OldBytes:        oldBytes,
		Context:         context_,
	})
}

func (g *ShareQuotaGuard) OldBytesForKey(ctx context.Context, storageConfigID, storageKey string) int64 {
	return g.svc.OldBytesForKey(ctx, storageConfigID, storageKey)
}
