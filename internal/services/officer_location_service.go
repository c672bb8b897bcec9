package services

import (
	"sync"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"
)

// OfficerLocationListener is told about every change to one officer's fix. The
// sample is nil when the officer went offline.
type OfficerLocationListener interface {
	OnOfficerLocationChanged(officerID string, sample *models.OfficerLocationSample)
}

type OfficerLocationService interface {
	OnLocationEvent(update models.OfficerLocationUpdate) error
	// OnOfficerDisconnected drops the officer and reports whether it was known.
	OnOfficerDisconnected(officerID string) bool
	// SnapshotAll returns every sample in the order officers were first seen.
	SnapshotAll() []models.OfficerLocationSample
	Available() []models.OfficerLocationSample
	Get(officerID string) (models.OfficerLocationSample, bool)
	// ReplaceAll rebuilds the store from a snapshot fetched after revision since.
	// Officers updated or disconnected by live events after since keep their state.
	ReplaceAll(samples []models.OfficerLocationSample, since uint64)
	// Revision increases on every live update or disconnect.
	Revision() uint64

	AddListener(listener OfficerLocationListener)
	RemoveListener(listener OfficerLocationListener)
}

type officerEvent struct {
	officerID string
	sample    *models.OfficerLocationSample
}

type officerLocationService struct {
	logger *logger.Logger

	mu       sync.Mutex
	order    []string
	samples  map[string]models.OfficerLocationSample
	revision uint64
	touched  map[string]uint64

	listenersMu sync.RWMutex
	listeners   []OfficerLocationListener
}

func NewOfficerLocationService(log *logger.Logger) OfficerLocationService {
	return &officerLocationService{
		logger:  log.WithComponent("officer_locations"),
		samples: make(map[string]models.OfficerLocationSample),
		touched: make(map[string]uint64),
	}
}

// OnLocationEvent stores the fix. The latest arrival wins regardless of its
// timestamp.
func (s *officerLocationService) OnLocationEvent(update models.OfficerLocationUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	sample := update.Sample()

	s.mu.Lock()
	s.put(sample)
	s.touch(sample.OfficerID)
	s.mu.Unlock()

	s.notify([]officerEvent{{officerID: sample.OfficerID, sample: &sample}})
	return nil
}

func (s *officerLocationService) OnOfficerDisconnected(officerID string) bool {
	s.mu.Lock()
	removed := s.delete(officerID)
	if removed {
		s.touch(officerID)
	}
	s.mu.Unlock()

	if !removed {
		s.logger.WithOfficerID(officerID).Debug("Disconnect for unknown officer ignored")
		return false
	}
	s.logger.WithOfficerID(officerID).Info("Officer went offline")
	s.notify([]officerEvent{{officerID: officerID}})
	return true
}

func (s *officerLocationService) SnapshotAll() []models.OfficerLocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.OfficerLocationSample, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.samples[id])
	}
	return all
}

func (s *officerLocationService) Available() []models.OfficerLocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := make([]models.OfficerLocationSample, 0, len(s.order))
	for _, id := range s.order {
		if sample := s.samples[id]; sample.Available {
			available = append(available, sample)
		}
	}
	return available
}

func (s *officerLocationService) Get(officerID string) (models.OfficerLocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample, ok := s.samples[officerID]
	return sample, ok
}

func (s *officerLocationService) ReplaceAll(samples []models.OfficerLocationSample, since uint64) {
	incoming := make(map[string]bool, len(samples))
	for _, sample := range samples {
		incoming[sample.OfficerID] = true
	}

	var events []officerEvent
	skipped := 0
	s.mu.Lock()
	for _, id := range append([]string(nil), s.order...) {
		if incoming[id] {
			continue
		}
		if s.touched[id] > since {
			skipped++
			continue
		}
		s.delete(id)
		events = append(events, officerEvent{officerID: id})
	}
	for i := range samples {
		sample := samples[i]
		if s.touched[sample.OfficerID] > since {
			skipped++
			continue
		}
		s.put(sample)
		events = append(events, officerEvent{officerID: sample.OfficerID, sample: &sample})
	}
	for id, revision := range s.touched {
		if revision <= since {
			delete(s.touched, id)
		}
	}
	count := len(s.order)
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"officers": count,
		"skipped":  skipped,
	}).Info("Officer locations replaced from snapshot")
	s.notify(events)
}

func (s *officerLocationService) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *officerLocationService) AddListener(listener OfficerLocationListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, existing := range s.listeners {
		if existing == listener {
			return
		}
	}
	s.listeners = append(s.listeners, listener)
}

func (s *officerLocationService) RemoveListener(listener OfficerLocationListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i, existing := range s.listeners {
		if existing == listener {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// put must be called with s.mu held.
func (s *officerLocationService) put(sample models.OfficerLocationSample) {
	if _, exists := s.samples[sample.OfficerID]; !exists {
		s.order = append(s.order, sample.OfficerID)
	}
	s.samples[sample.OfficerID] = sample
}

// touch must be called with s.mu held.
func (s *officerLocationService) touch(officerID string) {
	s.revision++
	s.touched[officerID] = s.revision
}

// delete must be called with s.mu held.
func (s *officerLocationService) delete(officerID string) bool {
	if _, exists := s.samples[officerID]; !exists {
		return false
	}
	delete(s.samples, officerID)
	for i, id := range s.order {
		if id == officerID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *officerLocationService) notify(events []officerEvent) {
	s.listenersMu.RLock()
	listeners := append([]OfficerLocationListener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, event := range events {
		for _, listener := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.WithOfficerID(event.officerID).WithField("panic", r).Error("Officer location listener panicked")
					}
				}()
				listener.OnOfficerLocationChanged(event.officerID, event.sample)
			}()
		}
	}
}
