package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"panicdesk/internal/models"
	"panicdesk/internal/repositories/interfaces"
	"panicdesk/internal/utils"
	"panicdesk/pkg/cache"
)

// CacheService is the subset of the redis cache the repository needs.
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

type pendingAlertRepository struct {
	cache CacheService
	key   string
}

func NewPendingAlertRepository(cache CacheService, namespace string) interfaces.PendingAlertRepository {
	return &pendingAlertRepository{
		cache: cache,
		key:   utils.CachePendingAlertsPrefix + namespace,
	}
}

// Save replaces the stored tray. An empty tray removes the key.
func (r *pendingAlertRepository) Save(ctx context.Context, alerts []models.PendingAlert) error {
	if len(alerts) == 0 {
		if err := r.cache.Delete(ctx, r.key); err != nil {
			return fmt.Errorf("%w: %v", models.ErrStorageWrite, err)
		}
		return nil
	}
	if err := r.cache.Set(ctx, r.key, alerts, 0); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageWrite, err)
	}
	return nil
}

func (r *pendingAlertRepository) Load(ctx context.Context) ([]models.PendingAlert, error) {
	var alerts []models.PendingAlert
	if err := r.cache.Get(ctx, r.key, &alerts); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return []models.PendingAlert{}, nil
		}
		return nil, fmt.Errorf("failed to load pending alerts: %w", err)
	}
	if alerts == nil {
		alerts = []models.PendingAlert{}
	}
	return alerts, nil
}
