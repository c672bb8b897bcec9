package interfaces

import (
	"context"

	"panicdesk/internal/models"
)

// PendingAlertRepository persists the operator's pending tray as one ordered list.
type PendingAlertRepository interface {
	// Save replaces the stored list with alerts, keeping their order.
	Save(ctx context.Context, alerts []models.PendingAlert) error
	// Load returns the stored list, or an empty list when nothing was saved yet.
	Load(ctx context.Context) ([]models.PendingAlert, error)
}
