package memory

import (
	"context"
	"sync"

	"panicdesk/internal/models"
	"panicdesk/internal/repositories/interfaces"
)

type pendingAlertRepository struct {
	mu     sync.Mutex
	alerts []models.PendingAlert
}

// NewPendingAlertRepository keeps the tray in process memory only. It does not
// survive a restart.
func NewPendingAlertRepository() interfaces.PendingAlertRepository {
	return &pendingAlertRepository{}
}

func (r *pendingAlertRepository) Save(_ context.Context, alerts []models.PendingAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append([]models.PendingAlert(nil), alerts...)
	return nil
}

func (r *pendingAlertRepository) Load(_ context.Context) ([]models.PendingAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PendingAlert{}, r.alerts...), nil
}
