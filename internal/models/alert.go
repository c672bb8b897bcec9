package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertState string
type AlertOrigin string

const (
	AlertStatePending    AlertState = "PENDING"
	AlertStateAssigned   AlertState = "ASSIGNED"
	AlertStateInProgress AlertState = "IN_PROGRESS"
	AlertStateResolved   AlertState = "RESOLVED"
	AlertStateCancelled  AlertState = "CANCELLED"
	AlertStateFalseAlarm AlertState = "FALSE_ALARM"

	AlertOriginPanicButton AlertOrigin = "PANIC_BUTTON"
	AlertOriginMobileApp   AlertOrigin = "MOBILE_APP"
	AlertOriginOperator    AlertOrigin = "OPERATOR"
)

func (s AlertState) IsValid() bool {
	switch s {
	case AlertStatePending, AlertStateAssigned, AlertStateInProgress,
		AlertStateResolved, AlertStateCancelled, AlertStateFalseAlarm:
		return true
	}
	return false
}

// AlertEvent is one lifecycle observation of an alert. The same AlertID shows up
// again every time the backend moves the alert to another state.
type AlertEvent struct {
	AlertID     string      `json:"alertId"`
	State       AlertState  `json:"state"`
	Origin      AlertOrigin `json:"origin"`
	OccurredAt  time.Time   `json:"occurredAt"`
	VictimLabel string      `json:"victimLabel"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
}

func (e AlertEvent) Validate() error {
	if strings.TrimSpace(e.AlertID) == "" {
		return fmt.Errorf("%w: alertId is required", ErrMalformedPayload)
	}
	if !e.State.IsValid() {
		return fmt.Errorf("%w: unsupported state %q", ErrMalformedPayload, e.State)
	}
	if (e.Latitude == nil) != (e.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", ErrMalformedPayload)
	}
	return nil
}

// CancellationRequestUpdate reports a change on a victim's request to cancel an
// alert. Only the alert-facing fields matter to the tray.
type CancellationRequestUpdate struct {
	RequestID   string     `json:"requestId"`
	AlertID     string     `json:"alertId"`
	State       AlertState `json:"state"`
	OccurredAt  time.Time  `json:"occurredAt"`
	VictimLabel string     `json:"victimLabel"`
}

func (u CancellationRequestUpdate) Validate() error {
	if strings.TrimSpace(u.RequestID) == "" {
		return fmt.Errorf("%w: requestId is required", ErrMalformedPayload)
	}
	return u.AlertEvent().Validate()
}

func (u CancellationRequestUpdate) AlertEvent() AlertEvent {
	return AlertEvent{
		AlertID:     u.AlertID,
		State:       u.State,
		OccurredAt:  u.OccurredAt,
		VictimLabel: u.VictimLabel,
	}
}

// PendingAlert is the persisted projection of an AlertEvent while it still waits
// for the operator.
type PendingAlert struct {
	AlertID     string      `json:"alertId" bson:"alert_id"`
	State       AlertState  `json:"state" bson:"state"`
	Origin      AlertOrigin `json:"origin" bson:"origin"`
	OccurredAt  time.Time   `json:"occurredAt" bson:"occurred_at"`
	VictimLabel string      `json:"victimLabel" bson:"victim_label"`
	Latitude    *float64    `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty" bson:"longitude,omitempty"`
}

// NewPendingAlert projects event into the tray. OccurredAt is kept in UTC at
// millisecond precision, the finest every pending alert store round-trips.
func NewPendingAlert(event AlertEvent) PendingAlert {
	return PendingAlert{
		AlertID:     event.AlertID,
		State:       AlertStatePending,
		Origin:      event.Origin,
		OccurredAt:  event.OccurredAt.UTC().Truncate(time.Millisecond),
		VictimLabel: event.VictimLabel,
		Latitude:    event.Latitude,
		Longitude:   event.Longitude,
	}
}

// Position returns the alert coordinates when the backend sent them.
func (p PendingAlert) Position() (lat, lng float64, ok bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return 0, 0, false
	}
	return *p.Latitude, *p.Longitude, true
}
