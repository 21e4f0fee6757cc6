package cache

import (
	"context"
	"time"

	"github.com/Ramivz11/aurum-gestion/internal/domain"
)

type DashboardCache interface {
	Get(ctx context.Context) (*domain.DashboardReport, bool, error)
	Set(ctx context.Context, report *domain.DashboardReport, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context) (*domain.DashboardReport, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ *domain.DashboardReport, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context) error {
	return nil
}
