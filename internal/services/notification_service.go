package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"panicdesk/internal/models"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
)

// PromptSink shows and hides prompts on one surface.
type PromptSink interface {
	PromptRequested(ctx context.Context, ticket models.NotificationTicket) error
	PromptDismissed(ctx context.Context, alertID string, reason models.DismissReason) error
}

type NotificationService interface {
	PendingAlertListener

	// Dismiss hides the prompt and leaves the pending alert in the tray.
	Dismiss(ctx context.Context, alertID string) bool
	// Navigate hides the prompt and consumes the pending alert if it is still
	// there. It reports whether anything changed.
	Navigate(ctx context.Context, alertID string) bool
	Active() []models.NotificationTicket
	Ticket(alertID string) (models.NotificationTicket, bool)
	// Close stops every prompt timer and detaches from the alert store.
	Close()
}

type NotificationOptions struct {
	Lifetime     time.Duration
	DeepLinkBase string
	Now          func() time.Time
}

type promptEntry struct {
	ticket     models.NotificationTicket
	timer      *time.Timer
	generation uint64
}

type notificationService struct {
	alerts AlertLifecycleService
	sinks  []PromptSink
	opts   NotificationOptions
	logger *logger.Logger

	mu         sync.Mutex
	prompts    map[string]*promptEntry
	generation uint64
	closed     bool
}

// NewNotificationService registers itself as a listener on alerts.
func NewNotificationService(alerts AlertLifecycleService, sinks []PromptSink, opts NotificationOptions, log *logger.Logger) NotificationService {
	if opts.Lifetime <= 0 {
		opts.Lifetime = utils.DefaultPromptLifetime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &notificationService{
		alerts:  alerts,
		sinks:   sinks,
		opts:    opts,
		logger:  log.WithComponent("notifications"),
		prompts: make(map[string]*promptEntry),
	}
	alerts.AddListener(s)
	return s
}

func (s *notificationService) OnPendingAlertsChanged(change PendingChange) {
	switch change.Kind {
	case ChangeAdded:
		s.show(change.Alert)
	case ChangeRemoved:
		if s.take(change.Alert.AlertID) {
			s.emitDismissed(change.Alert.AlertID, models.DismissReasonWithdrawn)
		}
	}
}

func (s *notificationService) show(alert models.PendingAlert) {
	now := s.opts.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.prompts[alert.AlertID]; exists {
		s.mu.Unlock()
		s.logger.WithAlertID(alert.AlertID).Debug("Prompt already shown, ignoring")
		return
	}
	s.generation++
	generation := s.generation
	ticket := models.NotificationTicket{
		AlertID:    alert.AlertID,
		Status:     models.PromptStatusShown,
		RenderData: s.renderData(alert),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.opts.Lifetime),
	}
	alertID := alert.AlertID
	s.prompts[alertID] = &promptEntry{
		ticket:     ticket,
		generation: generation,
		timer: time.AfterFunc(s.opts.Lifetime, func() {
			s.expire(alertID, generation)
		}),
	}
	s.mu.Unlock()

	s.logger.WithAlertID(alertID).Info("Prompt shown")
	for _, sink := range s.sinks {
		if err := sink.PromptRequested(context.Background(), ticket); err != nil {
			s.logger.WithAlertID(alertID).WithError(err).Warn("Prompt sink failed to show prompt")
		}
	}
}

func (s *notificationService) expire(alertID string, generation uint64) {
	s.mu.Lock()
	entry, exists := s.prompts[alertID]
	if !exists || entry.generation != generation {
		s.mu.Unlock()
		return
	}
	delete(s.prompts, alertID)
	s.mu.Unlock()

	s.logger.WithAlertID(alertID).Info("Prompt expired, alert stays pending")
	s.emitDismissed(alertID, models.DismissReasonExpired)
}

func (s *notificationService) Dismiss(ctx context.Context, alertID string) bool {
	if !s.take(alertID) {
		return false
	}
	s.emitDismissed(alertID, models.DismissReasonDismissed)
	return true
}

func (s *notificationService) Navigate(ctx context.Context, alertID string) bool {
	changed := false
	if s.take(alertID) {
		s.emitDismissed(alertID, models.DismissReasonNavigated)
		changed = true
	}

	// The alert may already be gone if a non-pending event raced the operator.
	if _, pending := s.alerts.Get(alertID); pending {
		if s.alerts.Remove(ctx, alertID) {
			changed = true
		}
	}

	if !changed {
		s.logger.WithAlertID(alertID).Debug("Navigate found nothing to consume")
	}
	return changed
}

func (s *notificationService) Active() []models.NotificationTicket {
	s.mu.Lock()
	tickets := make([]models.NotificationTicket, 0, len(s.prompts))
	for _, entry := range s.prompts {
		tickets = append(tickets, entry.ticket)
	}
	s.mu.Unlock()

	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].AlertID < tickets[j].AlertID
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets
}

func (s *notificationService) Ticket(alertID string) (models.NotificationTicket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.prompts[alertID]
	if !exists {
		return models.NotificationTicket{}, false
	}
	return entry.ticket, true
}

func (s *notificationService) Close() {
	s.alerts.RemoveListener(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for alertID, entry := range s.prompts {
		entry.timer.Stop()
		delete(s.prompts, alertID)
	}
}

// take removes the live prompt for alertID and reports whether there was one.
func (s *notificationService) take(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.prompts[alertID]
	if !exists {
		return false
	}
	entry.timer.Stop()
	delete(s.prompts, alertID)
	return true
}

func (s *notificationService) emitDismissed(alertID string, reason models.DismissReason) {
	for _, sink := range s.sinks {
		if err := sink.PromptDismissed(context.Background(), alertID, reason); err != nil {
			s.logger.WithAlertID(alertID).WithError(err).Warn("Prompt sink failed to dismiss prompt")
		}
	}
}

func (s *notificationService) renderData(alert models.PendingAlert) models.PromptRenderData {
	return models.PromptRenderData{
		Title:       promptTitle(alert.Origin),
		VictimLabel: alert.VictimLabel,
		Origin:      alert.Origin,
		OccurredAt:  alert.OccurredAt,
		DeepLink:    s.opts.DeepLinkBase + alert.AlertID,
	}
}

func promptTitle(origin models.AlertOrigin) string {
	switch origin {
	case models.AlertOriginPanicButton:
		return "Panic button alert"
	case models.AlertOriginMobileApp:
		return "Mobile app alert"
	case models.AlertOriginOperator:
		return "Operator-raised alert"
	default:
		return "New alert"
	}
}
