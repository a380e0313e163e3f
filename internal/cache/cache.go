package cache

import (
	"context"
	"time"

	"distledger/internal/domain"
)

// SummaryCache holds per-group due summaries between ledger mutations.
type SummaryCache interface {
	Get(ctx context.Context, groupID string) (*domain.GroupDue, bool, error)
	Set(ctx context.Context, groupID string, value *domain.GroupDue, ttl time.Duration) error
	Delete(ctx context.Context, groupID string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.GroupDue, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.GroupDue, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Delete(_ context.Context, _ string) error {
	return nil
}
