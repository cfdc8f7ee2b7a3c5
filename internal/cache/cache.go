package cache

import (
	"context"
	"time"

	"kasirtoko/backend/internal/domain"
)

// ReportCache holds short-lived daily report snapshots. Sale and void
// processing invalidate the affected day so dashboards never serve stale
// totals for long.
type ReportCache interface {
	GetDailySummary(ctx context.Context, date string) (*domain.DailySummary, bool, error)
	SetDailySummary(ctx context.Context, date string, value *domain.DailySummary, ttl time.Duration) error
	InvalidateDay(ctx context.Context, date string) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetDailySummary(_ context.Context, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetDailySummary(_ context.Context, _ string, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidateDay(_ context.Context, _ string) error {
	return nil
}
