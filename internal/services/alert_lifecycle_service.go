package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"panicdesk/internal/models"
	"panicdesk/internal/repositories/interfaces"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
)

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
)

// PendingChange describes one effective mutation of the tray. Pending is the full
// tray right after the mutation.
type PendingChange struct {
	Kind    ChangeKind            `json:"kind"`
	Alert   models.PendingAlert   `json:"alert"`
	Pending []models.PendingAlert `json:"pending"`
}

type PendingAlertListener interface {
	OnPendingAlertsChanged(change PendingChange)
}

type AlertLifecycleService interface {
	// OnAlertEvent applies one lifecycle event. It returns models.ErrStaleEvent
	// when the event is older than the last one applied for the same alert.
	OnAlertEvent(ctx context.Context, event models.AlertEvent) error
	// Remove drops alertID from the tray and reports whether it was present.
	Remove(ctx context.Context, alertID string) bool
	// Reconcile aligns the tray with a PENDING snapshot fetched after revision
	// since. Alerts touched by live events after since are left alone.
	Reconcile(ctx context.Context, snapshot []models.AlertEvent, since uint64)
	// Revision increases on every event applied or alert removed.
	Revision() uint64
	List() []models.PendingAlert
	Get(alertID string) (models.PendingAlert, bool)
	Count() int
	// PruneWatermarks forgets ordering state for alerts not seen since the cutoff.
	PruneWatermarks(cutoff time.Time) int

	AddListener(listener PendingAlertListener)
	RemoveListener(listener PendingAlertListener)
}

type AlertLifecycleOptions struct {
	PersistTimeout time.Duration
	Now            func() time.Time
}

type watermark struct {
	occurredAt time.Time
	seenAt     time.Time
	revision   uint64
}

type alertLifecycleService struct {
	repo   interfaces.PendingAlertRepository
	logger *logger.Logger
	opts   AlertLifecycleOptions

	mu         sync.Mutex
	set        *PendingSet
	watermarks map[string]watermark
	revision   uint64

	// dispatchMu is held from a mutation through its persist and notify, so
	// listeners see every change before the next one is applied. Listeners
	// must not mutate the tray synchronously.
	dispatchMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []PendingAlertListener
}

// NewAlertLifecycleService rehydrates the tray from repo before returning. A
// failed load starts from an empty tray.
func NewAlertLifecycleService(
	ctx context.Context,
	repo interfaces.PendingAlertRepository,
	log *logger.Logger,
	opts AlertLifecycleOptions,
) AlertLifecycleService {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = utils.DefaultPersistTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &alertLifecycleService{
		repo:       repo,
		logger:     log.WithComponent("alert_lifecycle"),
		opts:       opts,
		watermarks: make(map[string]watermark),
	}

	loadCtx, cancel := context.WithTimeout(ctx, opts.PersistTimeout)
	defer cancel()

	stored, err := repo.Load(loadCtx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to rehydrate pending alerts, starting empty")
		stored = nil
	}
	s.set = NewPendingSet(stored)

	now := opts.Now()
	for _, alert := range s.set.List() {
		s.watermarks[alert.AlertID] = watermark{occurredAt: alert.OccurredAt, seenAt: now}
	}
	s.logger.WithField("count", s.set.Len()).Info("Pending alerts rehydrated")

	return s
}

func (s *alertLifecycleService) OnAlertEvent(ctx context.Context, event models.AlertEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	log := s.logger.WithAlertID(event.AlertID)

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.isStale(event) {
		last := s.watermarks[event.AlertID].occurredAt
		s.mu.Unlock()
		log.WithFields(map[string]interface{}{
			"state":        event.State,
			"occurred_at":  event.OccurredAt,
			"last_applied": last,
		}).Debug("Stale alert event rejected")
		return fmt.Errorf("%w: alert %s at %s", models.ErrStaleEvent, event.AlertID, event.OccurredAt.Format(time.RFC3339))
	}
	s.advanceWatermark(event)

	var change *PendingChange
	if event.State == models.AlertStatePending {
		alert := models.NewPendingAlert(event)
		if s.set.Add(alert) {
			change = &PendingChange{Kind: ChangeAdded, Alert: alert, Pending: s.set.List()}
		}
	} else if removed, ok := s.set.Remove(event.AlertID); ok {
		change = &PendingChange{Kind: ChangeRemoved, Alert: removed, Pending: s.set.List()}
	}
	s.mu.Unlock()

	if change == nil {
		if event.State == models.AlertStatePending {
			log.Debug("Duplicate pending alert ignored")
		}
		return nil
	}

	log.LogAlertEvent(event.AlertID, string(change.Kind), map[string]interface{}{
		"state":  event.State,
		"origin": event.Origin,
	})
	s.persist(ctx)
	s.notify([]PendingChange{*change})
	return nil
}

func (s *alertLifecycleService) Remove(ctx context.Context, alertID string) bool {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if !s.set.Contains(alertID) {
		s.mu.Unlock()
		return false
	}
	removed, _ := s.set.Remove(alertID)
	s.touch(alertID)
	change := PendingChange{Kind: ChangeRemoved, Alert: removed, Pending: s.set.List()}
	s.mu.Unlock()

	s.logger.LogAlertEvent(alertID, string(ChangeRemoved), map[string]interface{}{"reason": "opened"})
	s.persist(ctx)
	s.notify([]PendingChange{change})
	return true
}

func (s *alertLifecycleService) Reconcile(ctx context.Context, snapshot []models.AlertEvent, since uint64) {
	fresh := make(map[string]models.AlertEvent, len(snapshot))
	for _, event := range snapshot {
		if event.State == models.AlertStatePending && event.Validate() == nil {
			fresh[event.AlertID] = event
		}
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	var changes []PendingChange
	skipped := 0
	s.mu.Lock()
	for _, alert := range s.set.List() {
		if _, keep := fresh[alert.AlertID]; keep {
			continue
		}
		if s.touchedAfter(alert.AlertID, since) {
			skipped++
			continue
		}
		removed, _ := s.set.Remove(alert.AlertID)
		changes = append(changes, PendingChange{Kind: ChangeRemoved, Alert: removed, Pending: s.set.List()})
	}
	for _, event := range snapshot {
		if _, ok := fresh[event.AlertID]; !ok || s.set.Contains(event.AlertID) || s.isStale(event) {
			continue
		}
		if s.touchedAfter(event.AlertID, since) {
			skipped++
			continue
		}
		s.advanceWatermark(event)
		alert := models.NewPendingAlert(event)
		s.set.Add(alert)
		changes = append(changes, PendingChange{Kind: ChangeAdded, Alert: alert, Pending: s.set.List()})
	}
	count := s.set.Len()
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"snapshot": len(fresh),
		"changes":  len(changes),
		"skipped":  skipped,
		"pending":  count,
	}).Info("Pending alerts reconciled with snapshot")

	if len(changes) == 0 {
		return
	}
	s.persist(ctx)
	s.notify(changes)
}

func (s *alertLifecycleService) List() []models.PendingAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.List()
}

func (s *alertLifecycleService) Get(alertID string) (models.PendingAlert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Get(alertID)
}

func (s *alertLifecycleService) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *alertLifecycleService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Len()
}

func (s *alertLifecycleService) PruneWatermarks(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for alertID, mark := range s.watermarks {
		if s.set.Contains(alertID) || !mark.seenAt.Before(cutoff) {
			continue
		}
		delete(s.watermarks, alertID)
		pruned++
	}
	if pruned > 0 {
		s.logger.WithField("pruned", pruned).Debug("Alert watermarks pruned")
	}
	return pruned
}

func (s *alertLifecycleService) AddListener(listener PendingAlertListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, existing := range s.listeners {
		if existing == listener {
			return
		}
	}
	s.listeners = append(s.listeners, listener)
}

func (s *alertLifecycleService) RemoveListener(listener PendingAlertListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i, existing := range s.listeners {
		if existing == listener {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// isStale must be called with s.mu held. Zero timestamps on either side never
// count as stale.
func (s *alertLifecycleService) isStale(event models.AlertEvent) bool {
	if event.OccurredAt.IsZero() {
		return false
	}
	mark, ok := s.watermarks[event.AlertID]
	if !ok || mark.occurredAt.IsZero() {
		return false
	}
	return event.OccurredAt.Before(mark.occurredAt)
}

// advanceWatermark must be called with s.mu held.
func (s *alertLifecycleService) advanceWatermark(event models.AlertEvent) {
	mark := s.watermarks[event.AlertID]
	if event.OccurredAt.After(mark.occurredAt) {
		mark.occurredAt = event.OccurredAt
		s.watermarks[event.AlertID] = mark
	}
	s.touch(event.AlertID)
}

// touch must be called with s.mu held.
func (s *alertLifecycleService) touch(alertID string) {
	mark := s.watermarks[alertID]
	mark.seenAt = s.opts.Now()
	s.revision++
	mark.revision = s.revision
	s.watermarks[alertID] = mark
}

// touchedAfter must be called with s.mu held.
func (s *alertLifecycleService) touchedAfter(alertID string, since uint64) bool {
	mark, ok := s.watermarks[alertID]
	return ok && mark.revision > since
}

// persist writes the current tray. Failures are logged and never undo the
// in-memory change; the next mutation rewrites the full list.
// Must be called with s.dispatchMu held.
func (s *alertLifecycleService) persist(ctx context.Context) {
	list := s.List()
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
	defer cancel()

	if err := s.repo.Save(writeCtx, list); err != nil {
		if !errors.Is(err, models.ErrStorageWrite) {
			err = fmt.Errorf("%w: %v", models.ErrStorageWrite, err)
		}
		s.logger.WithError(err).WithField("count", len(list)).Warn("Failed to persist pending alerts")
	}
}

func (s *alertLifecycleService) notify(changes []PendingChange) {
	s.listenersMu.RLock()
	listeners := append([]PendingAlertListener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, change := range changes {
		for _, listener := range listeners {
			s.safeNotify(listener, change)
		}
	}
}

func (s *alertLifecycleService) safeNotify(listener PendingAlertListener, change PendingChange) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithAlertID(change.Alert.AlertID).WithField("panic", r).Error("Pending alert listener panicked")
		}
	}()
	listener.OnPendingAlertsChanged(change)
}
