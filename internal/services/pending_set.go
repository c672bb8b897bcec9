package services

import "panicdesk/internal/models"

// PendingSet is the ordered, duplicate-free tray of pending alerts. It performs no
// I/O and is not safe for concurrent use.
type PendingSet struct {
	order []string
	items map[string]models.PendingAlert
}

// NewPendingSet builds a set from alerts, keeping the first occurrence of each id.
func NewPendingSet(alerts []models.PendingAlert) *PendingSet {
	s := &PendingSet{items: make(map[string]models.PendingAlert, len(alerts))}
	for _, alert := range alerts {
		s.Add(alert)
	}
	return s
}

// Add appends alert unless its id is already present.
func (s *PendingSet) Add(alert models.PendingAlert) bool {
	if _, exists := s.items[alert.AlertID]; exists {
		return false
	}
	s.items[alert.AlertID] = alert
	s.order = append(s.order, alert.AlertID)
	return true
}

// Remove deletes the entry for alertID and returns it.
func (s *PendingSet) Remove(alertID string) (models.PendingAlert, bool) {
	alert, exists := s.items[alertID]
	if !exists {
		return models.PendingAlert{}, false
	}
	delete(s.items, alertID)
	for i, id := range s.order {
		if id == alertID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return alert, true
}

func (s *PendingSet) Contains(alertID string) bool {
	_, exists := s.items[alertID]
	return exists
}

func (s *PendingSet) Get(alertID string) (models.PendingAlert, bool) {
	alert, exists := s.items[alertID]
	return alert, exists
}

// List returns a copy in insertion order.
func (s *PendingSet) List() []models.PendingAlert {
	list := make([]models.PendingAlert, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.items[id])
	}
	return list
}

func (s *PendingSet) Len() int {
	return len(s.order)
}
